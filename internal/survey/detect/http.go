package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/pavescan-data/surface.report/internal/httputil"
)

// ModelClient queries a remote inference server. Each Detect call posts the
// region as a JPEG in a multipart form; the server answers with a JSON
// detection list in region-local pixels.
type ModelClient struct {
	baseURL string
	client  httputil.HTTPClient
}

// NewModelClient creates a client for the model server at baseURL. A nil
// client falls back to the default HTTP client.
func NewModelClient(baseURL string, client httputil.HTTPClient) *ModelClient {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &ModelClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type detectResponse struct {
	Detections []wireResult `json:"detections"`
}

func (c *ModelClient) Detect(ctx context.Context, region Region, conf float64) ([]Result, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", fmt.Sprintf("frame_%06d.jpg", region.Frame.Index))
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	if err := jpeg.Encode(part, region.Image(), nil); err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", region.Frame.Index, err)
	}
	if err := form.WriteField("confidence", strconv.FormatFloat(conf, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", &body)
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("model server returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	results := make([]Result, 0, len(decoded.Detections))
	for _, d := range decoded.Detections {
		results = append(results, d.result())
	}
	return results, nil
}

// CheckHealth probes the model server health endpoint. The API health
// handler reports the result without failing the service.
func (c *ModelClient) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("model server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server health returned %d", resp.StatusCode)
	}
	return nil
}
