// Package embedder talks to the external face embedding service. The service
// owns face detection and the neural embedding model; this package only moves
// bytes and enforces the training-image rule.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

const (
	defaultBaseURL = "http://localhost:8000"
	// DefaultDim is the embedding length produced by the dlib ResNet face model.
	DefaultDim = 128
)

// Face is one detected face: its embedding plus detection metadata.
type Face struct {
	Embedding []float32
	BBox      []float64 // [x1, y1, x2, y2] in pixels
	Score     float64
}

// ExtractionError reports a training image in which the service found zero
// or more than one face. The image is skipped, not fatal to the build.
type ExtractionError struct {
	File  string
	Faces int
}

func (e *ExtractionError) Error() string {
	if e.Faces == 0 {
		return fmt.Sprintf("no face found in %s", e.File)
	}
	return fmt.Sprintf("%d faces found in %s, want exactly one", e.Faces, e.File)
}

// Client computes face embeddings using the embedding server.
type Client struct {
	baseURL string
	dim     int
	client  *http.Client
}

// New creates a new embedding client. Empty baseURL and zero dim fall back
// to defaults.
func New(baseURL string, dim int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if dim <= 0 {
		dim = DefaultDim
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		client:  &http.Client{},
	}
}

// faceDetection represents a single detected face in the service response.
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"`
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint.
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// DetectAndEncode detects faces in an image and returns one embedding per
// face. Zero faces is not an error here; live-path callers simply match each
// returned embedding independently.
func (c *Client) DetectAndEncode(ctx context.Context, imageData []byte) ([]Face, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	faces := make([]Face, 0, len(faceResp.Faces))
	for _, f := range faceResp.Faces {
		if len(f.Embedding) != c.dim {
			return nil, fmt.Errorf("face %d has %d-dim embedding, want %d", f.FaceIndex, len(f.Embedding), c.dim)
		}
		faces = append(faces, Face{Embedding: f.Embedding, BBox: f.BBox, Score: f.DetScore})
	}
	return faces, nil
}

// EncodeTrainingImage returns the embedding for a reference image, enforcing
// the exactly-one-face rule for training data.
func (c *Client) EncodeTrainingImage(ctx context.Context, imageData []byte) ([]float32, error) {
	faces, err := c.DetectAndEncode(ctx, imageData)
	if err != nil {
		return nil, err
	}
	if len(faces) != 1 {
		return nil, &ExtractionError{Faces: len(faces)}
	}
	return faces[0].Embedding, nil
}

// Dim returns the embedding dimension this client expects.
func (c *Client) Dim() int {
	return c.dim
}
