// Package embedding talks to the external face embedding server.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	defaultTimeout      = 30 * time.Second
)

// Client computes face embeddings using the embedding server
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new embedding client
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Embeddings returns the non-empty embeddings of all detected faces.
func (r *FaceResponse) Embeddings() [][]float32 {
	var out [][]float32
	for _, f := range r.Faces {
		if len(f.Embedding) > 0 {
			out = append(out, f.Embedding)
		}
	}
	return out
}

// postMultipartImage posts the image as the "file" form field with a sniffed Content-Type.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create form file")
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, goerr.Wrap(err, "failed to write image data")
	}

	if err := writer.Close(); err != nil {
		return nil, goerr.Wrap(err, "failed to close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "request failed", goerr.V("endpoint", endpoint))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("embedding server error",
			goerr.V("status", resp.StatusCode), goerr.V("body", string(body)))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}

// ComputeFaceEmbeddings detects faces and computes their embeddings
func (c *Client) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, goerr.Wrap(err, "failed to parse response")
	}

	return &faceResp, nil
}
