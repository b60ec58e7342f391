package http

import (
	"encoding/json"
	"net/http"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
	"github.com/edgecoder/edgeauth/internal/auth/service"
	"github.com/edgecoder/edgeauth/pkg/authsdk"
	"github.com/edgecoder/edgeauth/pkg/httpx"
)

// NodeHandler serves node trust enrollment, listing, validation and approval.
type NodeHandler struct {
	Nodes *service.NodeService
}

func nodeResponse(e domain.NodeEnrollment) authsdk.NodeResponse {
	return authsdk.NodeResponse{
		NodeID:        e.NodeID,
		DeviceID:      e.DeviceID,
		Kind:          e.Kind,
		EmailVerified: e.EmailVerified,
		Approved:      e.Approved,
		Active:        e.Active(),
		BlockedReason: e.BlockedReason(),
		LastSeenIP:    e.LastSeenIP,
		LastSeenGeo:   e.LastSeenGeo,
		LastSeenVPN:   e.LastSeenVPN,
		LastSeenAt:    e.LastSeenAt,
		CreatedAt:     e.CreatedAt,
	}
}

// HandleEnroll handles POST /nodes/enroll
//
//	@Summary		Enroll a node
//	@Description	Registers a device under the logged-in account and mints a fresh registration
//	@Description	token. The token is returned exactly once; only its hash is stored.
//	@Tags			Nodes
//	@Security		SessionAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.NodeEnrollRequest	true	"Node identity"
//	@Success		200		{object}	authsdk.NodeEnrollResponse	"Enrollment state and raw token"
//	@Failure		400		{object}	authsdk.ErrorResponse		"Malformed request"
//	@Failure		403		{object}	authsdk.ErrorResponse		"Node owned by another account"
//	@Router			/nodes/enroll [post].
func (h *NodeHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	}

	var req authsdk.NodeEnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrValidation.WriteError(w)
		return
	}
	if req.NodeID == "" || (req.Kind != domain.NodeKindAgent && req.Kind != domain.NodeKindCoordinator) {
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeValidation,
			"node_id is required and kind must be agent or coordinator").WriteError(w)
		return
	}

	enrollment, token, err := h.Nodes.Enroll(r.Context(), user, req.NodeID, req.Kind, req.DeviceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.NodeEnrollResponse{
		NodeID:            enrollment.NodeID,
		Kind:              enrollment.Kind,
		RegistrationToken: token,
		EmailVerified:     enrollment.EmailVerified,
		Approved:          enrollment.Approved,
		Active:            enrollment.Active(),
		BlockedReason:     enrollment.BlockedReason(),
	})
}

// HandleList handles GET /nodes
//
//	@Summary		List enrolled nodes
//	@Description	Returns the logged-in account's node enrollments.
//	@Tags			Nodes
//	@Security		SessionAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.NodeListResponse	"Enrollments"
//	@Failure		401	{object}	authsdk.ErrorResponse		"No valid session"
//	@Router			/nodes [get].
func (h *NodeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	}

	enrollments, err := h.Nodes.ListForOwner(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := authsdk.NodeListResponse{Nodes: make([]authsdk.NodeResponse, 0, len(enrollments))}
	for _, e := range enrollments {
		out.Nodes = append(out.Nodes, nodeResponse(e))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleDelete handles DELETE /nodes/{nodeID}
//
//	@Summary		Delete a node enrollment
//	@Description	Removes an enrollment. Permitted to the owner or an admin.
//	@Tags			Nodes
//	@Security		SessionAuth
//	@Param			nodeID	path	string	true	"Node id"
//	@Success		204	"Enrollment removed"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Node owned by another account"
//	@Failure		404	{object}	authsdk.ErrorResponse	"Unknown node"
//	@Router			/nodes/{nodeID} [delete].
func (h *NodeHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	}

	if err := h.Nodes.Delete(r.Context(), user, r.PathValue("nodeID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleValidate handles POST /internal/nodes/validate
//
//	@Summary		Validate a node
//	@Description	Checks the device-presented registration token and returns the trust verdict.
//	@Description	Called by the scheduler on every node connect and heartbeat.
//	@Tags			Internal
//	@Accept			json
//	@Produce		json
//	@Param			X-Internal-Token	header		string						true	"Service shared secret"
//	@Param			request				body		authsdk.NodeValidateRequest	true	"Node credentials"
//	@Success		200					{object}	authsdk.NodeValidateResponse	"Trust verdict"
//	@Failure		401					{object}	authsdk.ErrorResponse			"Unknown node or bad token"
//	@Router			/internal/nodes/validate [post].
func (h *NodeHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.NodeValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NodeID == "" || req.RegistrationToken == "" {
		authsdk.ErrValidation.WriteError(w)
		return
	}

	verdict, err := h.Nodes.Validate(r.Context(), req.NodeID, req.Kind, req.RegistrationToken, req.DeviceID, req.SourceIP)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.NodeValidateResponse{
		NodeID:        verdict.NodeID,
		Kind:          verdict.Kind,
		Active:        verdict.Active,
		EmailVerified: verdict.EmailVerified,
		Approved:      verdict.Approved,
		BlockedReason: verdict.BlockedReason,
	})
}

// HandleApproval handles POST /internal/nodes/{nodeID}/approval
//
//	@Summary		Set node approval
//	@Description	Flips the approval gate. Rejecting a never-approved node deletes the enrollment;
//	@Description	a previously approved node is deactivated but keeps its record.
//	@Tags			Internal
//	@Accept			json
//	@Produce		json
//	@Param			X-Internal-Token	header		string						true	"Service shared secret"
//	@Param			nodeID				path		string						true	"Node id"
//	@Param			request				body		authsdk.NodeApprovalRequest	true	"Approval verdict"
//	@Success		200					{object}	authsdk.NodeApprovalResponse	"Resulting state"
//	@Failure		404					{object}	authsdk.ErrorResponse			"Unknown node"
//	@Router			/internal/nodes/{nodeID}/approval [post].
func (h *NodeHandler) HandleApproval(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("nodeID")

	var req authsdk.NodeApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrValidation.WriteError(w)
		return
	}

	enrollment, deleted, err := h.Nodes.SetApproval(r.Context(), nodeID, req.Approved)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if deleted {
		httpx.WriteJSON(w, http.StatusOK, authsdk.NodeApprovalResponse{
			NodeID:  nodeID,
			Deleted: true,
		})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.NodeApprovalResponse{
		NodeID:   enrollment.NodeID,
		Approved: enrollment.Approved,
		Active:   enrollment.Active(),
	})
}
