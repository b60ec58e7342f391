package http

import (
	"net/http"
	"time"

	"github.com/edgecoder/edgeauth/internal/auth/store"
	"github.com/edgecoder/edgeauth/pkg/authsdk"
	"github.com/edgecoder/edgeauth/pkg/httpx"
	"github.com/edgecoder/edgeauth/pkg/slogx"
)

// ReadyzHandler handles GET /readyz
//
//	@Summary		Readiness probe
//	@Description	Reports whether the service can take traffic. Checks the database.
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"Ready"
//	@Failure		503	{object}	authsdk.HealthResponse	"A dependency is unavailable"
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
			Checks:  &authsdk.HealthChecks{Database: "ok"},
		}
		status := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			slogx.FromContext(r.Context()).Error("readiness database check failed", "error", err)
			resp.Status = "degraded"
			resp.Checks.Database = "unavailable"
			status = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, status, resp)
	}
}
