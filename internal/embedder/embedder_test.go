package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newFaceServer serves a canned face response and records the request.
func newFaceServer(t *testing.T, faces []faceDetection) (*httptest.Server, *http.Request) {
	t.Helper()
	var captured http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = *r
		if r.URL.Path != "/embed/face" {
			http.NotFound(w, r)
			return
		}
		resp := faceResponse{FacesCount: len(faces), Faces: faces, Model: "test"}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server, &captured
}

func testEmbedding(dim int) []float32 {
	e := make([]float32, dim)
	for i := range e {
		e[i] = float32(i) / float32(dim)
	}
	return e
}

func TestDetectAndEncode(t *testing.T) {
	faces := []faceDetection{
		{FaceIndex: 0, Dim: 4, Embedding: testEmbedding(4), BBox: []float64{10, 20, 30, 40}, DetScore: 0.99},
		{FaceIndex: 1, Dim: 4, Embedding: testEmbedding(4), BBox: []float64{50, 60, 70, 80}, DetScore: 0.87},
	}
	server, req := newFaceServer(t, faces)
	client := New(server.URL, 4)

	got, err := client.DetectAndEncode(context.Background(), []byte("image-bytes"))
	if err != nil {
		t.Fatalf("DetectAndEncode() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d faces, want 2", len(got))
	}
	if got[1].Score != 0.87 {
		t.Errorf("face 1 score = %v, want 0.87", got[1].Score)
	}
	if got[0].BBox[0] != 10 {
		t.Errorf("face 0 bbox = %v", got[0].BBox)
	}
	if !strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/form-data") {
		t.Errorf("Content-Type = %q, want multipart", req.Header.Get("Content-Type"))
	}
}

func TestDetectAndEncodeRejectsWrongDim(t *testing.T) {
	server, _ := newFaceServer(t, []faceDetection{
		{FaceIndex: 0, Dim: 4, Embedding: testEmbedding(4)},
	})
	client := New(server.URL, 128)

	if _, err := client.DetectAndEncode(context.Background(), []byte("x")); err == nil {
		t.Fatal("DetectAndEncode() accepted a 4-dim embedding for a 128-dim client")
	}
}

func TestDetectAndEncodeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()
	client := New(server.URL, 4)

	_, err := client.DetectAndEncode(context.Background(), []byte("x"))
	if err == nil {
		t.Fatal("DetectAndEncode() swallowed a server error")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %v, want status code included", err)
	}
}

func TestEncodeTrainingImage(t *testing.T) {
	tests := []struct {
		name      string
		faces     int
		wantErr   bool
		wantFaces int
	}{
		{name: "exactly one face", faces: 1},
		{name: "no face", faces: 0, wantErr: true, wantFaces: 0},
		{name: "two faces", faces: 2, wantErr: true, wantFaces: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var faces []faceDetection
			for i := 0; i < tt.faces; i++ {
				faces = append(faces, faceDetection{FaceIndex: i, Dim: 4, Embedding: testEmbedding(4)})
			}
			server, _ := newFaceServer(t, faces)
			client := New(server.URL, 4)

			embedding, err := client.EncodeTrainingImage(context.Background(), []byte("x"))
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("EncodeTrainingImage() error = %v", err)
				}
				if len(embedding) != 4 {
					t.Errorf("embedding length = %d, want 4", len(embedding))
				}
				return
			}

			var extractErr *ExtractionError
			if !errors.As(err, &extractErr) {
				t.Fatalf("error = %v, want *ExtractionError", err)
			}
			if extractErr.Faces != tt.wantFaces {
				t.Errorf("Faces = %d, want %d", extractErr.Faces, tt.wantFaces)
			}
		})
	}
}

func TestExtractionErrorMessage(t *testing.T) {
	noFace := &ExtractionError{File: "JohnDoe.jpg", Faces: 0}
	if got := noFace.Error(); got != "no face found in JohnDoe.jpg" {
		t.Errorf("Error() = %q", got)
	}
	twoFaces := &ExtractionError{File: "Group.jpg", Faces: 2}
	if got := twoFaces.Error(); got != "2 faces found in Group.jpg, want exactly one" {
		t.Errorf("Error() = %q", got)
	}
}
