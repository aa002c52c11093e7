package handler

import (
	"net/http"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Channels int    `json:"channels"`
}

// Health returns the liveness handler. channels reports how many progress
// channels are currently held; it may be nil.
func Health(channels func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if channels != nil {
			resp.Channels = channels()
		}
		JSON(w, http.StatusOK, resp)
	}
}
