// Package remote calls an external generation service over HTTP. The wire
// contract is a single JSON generate endpoint; assets come back inline as
// base64 or as a download URL. API tokens are resolved per call so rotations
// through the credentials store take effect without restarting workers.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/domain/genparams"
	"mediagen/internal/providers"
)

// TokenSource yields the API token for a provider. *credentials.Store
// satisfies it.
type TokenSource interface {
	Token(ctx context.Context, provider string) (string, error)
}

// Options configures the client.
type Options struct {
	// Name is the provider id used for records, breakers and token lookup.
	Name           string
	BaseURL        string
	Model          string
	Tokens         TokenSource
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// Client implements providers.Generator against the remote service.
type Client struct {
	name       string
	baseURL    string
	model      string
	tokens     TokenSource
	httpClient *http.Client
	logger     zerolog.Logger
}

func New(opts Options) (*Client, error) {
	if opts.Tokens == nil {
		return nil, errors.New("remote: token source is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("remote: base url is required")
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "remote"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		name:       name,
		baseURL:    baseURL,
		model:      strings.TrimSpace(opts.Model),
		tokens:     opts.Tokens,
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

func (c *Client) Name() string { return c.name }

type generateRequest struct {
	Model       string           `json:"model,omitempty"`
	ContentType string           `json:"contentType"`
	RecordID    string           `json:"recordId"`
	JobID       string           `json:"jobId"`
	Params      genparams.Params `json:"params"`
}

type generateResponse struct {
	Data            string  `json:"data,omitempty"`
	URL             string  `json:"url,omitempty"`
	MimeType        string  `json:"mimeType,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	QualityScore    float64 `json:"qualityScore,omitempty"`
	Code            string  `json:"code,omitempty"`
	Message         string  `json:"message,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// defaultMimes fills in the asset type when the service omits one.
var defaultMimes = map[domain.ContentType]string{
	domain.ContentTypePodcastAudio:  "audio/mpeg",
	domain.ContentTypeVideoIntro:    "video/mp4",
	domain.ContentTypePortfolioPDF:  "application/pdf",
	domain.ContentTypeQRCode:        "image/png",
	domain.ContentTypeHeadshotImage: "image/png",
}

// Generate invokes the service once and returns the asset bytes.
func (c *Client) Generate(ctx context.Context, req providers.Request) (*providers.Result, error) {
	token, err := c.tokens.Token(ctx, c.name)
	if err != nil {
		return nil, &providers.CallError{Provider: c.name, Message: "load api token", Err: err}
	}
	if token == "" {
		return nil, &providers.CallError{Provider: c.name, Code: "invalid_api_key", Message: "no api token configured"}
	}

	payload := generateRequest{
		Model:       c.model,
		ContentType: string(req.ContentType),
		RecordID:    req.RecordID,
		JobID:       req.JobID,
		Params:      req.Params,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &providers.CallError{Provider: c.name, Message: "encode request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, &providers.CallError{Provider: c.name, Message: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &providers.CallError{Provider: c.name, Message: "generate request", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &providers.CallError{Provider: c.name, Message: "read response", Err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, c.statusError(resp.StatusCode, raw)
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &providers.CallError{Provider: c.name, Code: "invalid_response", Message: "decode response", RawResponse: clip(raw), Err: err}
	}
	if decoded.Code != "" {
		return nil, &providers.CallError{Provider: c.name, Code: decoded.Code, Message: decoded.Message, RawResponse: clip(raw)}
	}

	data, mime, err := c.assetBytes(ctx, decoded)
	if err != nil {
		return nil, err
	}
	if mime == "" {
		mime = defaultMimes[req.ContentType]
	}

	c.logger.Debug().
		Str("provider", c.name).
		Str("record_id", req.RecordID).
		Str("content_type", string(req.ContentType)).
		Int("bytes", len(data)).
		Msg("remote: generated asset")

	return &providers.Result{
		Data:         data,
		MimeType:     mime,
		Duration:     decoded.DurationSeconds,
		QualityScore: decoded.QualityScore,
	}, nil
}

// assetBytes resolves the payload, preferring inline data over a download.
func (c *Client) assetBytes(ctx context.Context, decoded generateResponse) ([]byte, string, error) {
	if decoded.Data != "" {
		data, err := base64.StdEncoding.DecodeString(decoded.Data)
		if err != nil {
			return nil, "", &providers.CallError{Provider: c.name, Code: "invalid_response", Message: "decode inline data", Err: err}
		}
		return data, decoded.MimeType, nil
	}
	if decoded.URL != "" {
		return c.download(ctx, decoded.URL)
	}
	return nil, "", &providers.CallError{Provider: c.name, Code: "invalid_response", Message: "response carried neither data nor url"}
}

func (c *Client) download(ctx context.Context, assetURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, "", &providers.CallError{Provider: c.name, Message: "build download request", Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &providers.CallError{Provider: c.name, Message: "download asset", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, "", &providers.CallError{
			Provider:    c.name,
			Code:        strconv.Itoa(resp.StatusCode),
			Message:     fmt.Sprintf("download status %d", resp.StatusCode),
			RawResponse: clip(raw),
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &providers.CallError{Provider: c.name, Message: "read asset", Err: err}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// statusError maps a non-2xx response onto a CallError, preferring the
// service's own code and message when the body carries them.
func (c *Client) statusError(status int, raw []byte) error {
	code := strconv.Itoa(status)
	message := http.StatusText(status)
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil {
		if detail.Code != "" {
			code = detail.Code
		}
		if detail.Message != "" {
			message = detail.Message
		}
	}
	return &providers.CallError{Provider: c.name, Code: code, Message: message, RawResponse: clip(raw)}
}

func clip(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 2048 {
		return s[:2048]
	}
	return s
}

var _ providers.Generator = (*Client)(nil)
