package http

import (
	"net/http"
	"time"

	"github.com/edgecoder/edgeauth/pkg/authsdk"
	"github.com/edgecoder/edgeauth/pkg/httpx"
)

// LivezHandler handles GET /livez
//
//	@Summary		Liveness probe
//	@Description	Reports that the process is up. Never touches dependencies.
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"Alive"
//	@Router			/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
		})
	}
}
