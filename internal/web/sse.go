package web

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Events streams recognition events over SSE until the client disconnects.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := h.session.Subscribe()
	defer cancel()

	sendSSEEvent(w, flusher, "status", map[string]string{"session": h.session.ID()})

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, "recognition", event)
		}
	}
}

// sendSSEEvent writes a single named SSE event with a JSON payload.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	flusher.Flush()
}
