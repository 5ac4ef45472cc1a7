package web

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/frame"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/recognizer"
)

// maxImageUpload bounds the accepted image size for /recognize/image.
const maxImageUpload = 20 << 20

// Handler serves the recognition API.
type Handler struct {
	config   *config.Config
	session  *recognizer.Session
	embedder *embedder.Client
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"session": h.session.ID(),
	})
}

// identityInfo summarizes one gallery identity.
type identityInfo struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	References int    `json:"references"`
}

// Identities returns a summary of the loaded gallery.
func (h *Handler) Identities(w http.ResponseWriter, r *http.Request) {
	g := h.session.Gallery()
	identities := make([]identityInfo, 0, g.Len())
	for _, id := range g.Identities() {
		identities = append(identities, identityInfo{
			Key:        id.Key,
			Name:       id.Name,
			References: len(id.Embeddings),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"identities": identities,
		"embeddings": g.NumEmbeddings(),
		"tolerance":  h.session.Tolerance(),
	})
}

// Attendance returns all ledger rows in append order.
func (h *Handler) Attendance(w http.ResponseWriter, r *http.Request) {
	records, err := h.session.Ledger().Records()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "reading attendance: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

// AttendanceToday returns today's ledger rows.
func (h *Handler) AttendanceToday(w http.ResponseWriter, r *http.Request) {
	records, err := h.session.Ledger().Today(time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "reading attendance: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

// recognizeRequest carries a raw embedding from an external capture client.
type recognizeRequest struct {
	Embedding []float32 `json:"embedding"`
}

// Recognize matches one embedding through the session, so cooldown and
// ledger semantics apply exactly as in the local recognition loop.
func (h *Handler) Recognize(w http.ResponseWriter, r *http.Request) {
	var req recognizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Embedding) != gallery.EmbeddingDim {
		respondError(w, http.StatusBadRequest, "embedding must have 128 dimensions")
		return
	}

	event := h.session.Observe(req.Embedding, time.Now())
	respondJSON(w, http.StatusOK, event)
}

// RecognizeImage accepts an image upload, runs it through the embedding
// service, and matches every detected face independently.
func (h *Handler) RecognizeImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageUpload))
	if err != nil {
		respondError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return
	}

	if scaled, err := frame.DownscaleJPEG(data, h.config.FrameScale); err == nil {
		data = scaled
	}

	faces, err := h.embedder.DetectAndEncode(r.Context(), data)
	if err != nil {
		respondError(w, http.StatusBadGateway, "embedding service: "+err.Error())
		return
	}

	now := time.Now()
	events := make([]recognizer.Event, 0, len(faces))
	for _, f := range faces {
		events = append(events, h.session.Observe(f.Embedding, now))
	}
	respondJSON(w, http.StatusOK, map[string]any{"faces": len(faces), "events": events})
}
