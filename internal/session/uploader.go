package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"chameflow/internal/infra"
)

// ErrUpload indicates the backend rejected an upload or the transfer itself
// failed. Uploads are never retried here; the caller decides.
var ErrUpload = errors.New("session: upload failed")

// UploaderOptions configures an Uploader.
type UploaderOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Uploader transmits a local file to the gateway and returns the
// server-assigned artifact name. The name is opaque and must be used
// verbatim when referencing the upload in a later job.
type Uploader struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type uploadResponse struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// NewUploader constructs an Uploader for the gateway at opts.BaseURL.
func NewUploader(opts UploaderOptions) *Uploader {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Uploader{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Upload sends data as a single multipart request and returns the artifact
// name the backend assigned to it.
func (u *Uploader) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrUpload, err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrUpload, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrUpload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/api/upload", body)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrUpload, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUpload, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d: %s", ErrUpload, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded uploadResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpload, err)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrUpload, decoded.Error)
	}
	if decoded.Filename == "" {
		return "", fmt.Errorf("%w: empty artifact name", ErrUpload)
	}
	u.logger.Debug().Str("filename", filename).Str("artifact", decoded.Filename).Msg("session: uploaded")
	return decoded.Filename, nil
}
