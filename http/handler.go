package http

import (
	"context"
	"net/http"

	"github.com/aukilabs/cellgrid/models"
)

func HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ReadyStatus is the body written by the readiness endpoint.
type ReadyStatus struct {
	Ready       bool   `json:"ready"`
	ServerID    string `json:"server_id"`
	RegionCount int    `json:"region_count"`
}

// HandleReadyCheck reports whether the server accepts region joins. It
// answers 503 once ctx is done.
func HandleReadyCheck(ctx context.Context, regions *models.RegionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := ReadyStatus{
			Ready:       ctx.Err() == nil,
			RegionCount: len(regions.List()),
		}
		// List initializes the store, which defaults the server id.
		status.ServerID = regions.ServerID

		code := http.StatusOK
		if !status.Ready {
			code = http.StatusServiceUnavailable
		}
		JSON(w, code, status)
	}
}

func HandleVersion(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(version))
	}
}
