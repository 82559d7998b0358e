package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"mediagen/internal/domain"
	"mediagen/internal/domain/genparams"
	"mediagen/internal/providers"
)

type tokenMap map[string]string

func (m tokenMap) Token(_ context.Context, provider string) (string, error) {
	return m[provider], nil
}

type captureTransport struct {
	responses map[string]responseStub
	lastBody  []byte
	lastAuth  string
	calls     int
}

type responseStub struct {
	status int
	header http.Header
	body   []byte
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls++
	if req.Method == http.MethodPost {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		c.lastBody = body
		c.lastAuth = req.Header.Get("Authorization")
		if stub, ok := c.responses[req.URL.Path]; ok {
			return stub.toResponse(), nil
		}
	}
	if req.Method == http.MethodGet {
		if stub, ok := c.responses[req.URL.String()]; ok {
			return stub.toResponse(), nil
		}
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

func (c *captureTransport) setJSONResponse(path string, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[path] = responseStub{
		status: http.StatusOK,
		header: http.Header{"Content-Type": []string{"application/json"}},
		body:   body,
	}
}

func (c *captureTransport) setBinaryResponse(url string, data []byte) {
	c.responses[url] = responseStub{
		status: http.StatusOK,
		header: http.Header{"Content-Type": []string{"image/png"}},
		body:   data,
	}
}

func (c *captureTransport) setStatusResponse(path string, status int, body string) {
	c.responses[path] = responseStub{
		status: status,
		body:   []byte(body),
	}
}

func (s responseStub) toResponse() *http.Response {
	header := http.Header{}
	for k, values := range s.header {
		cloned := make([]string, len(values))
		copy(cloned, values)
		header[k] = cloned
	}
	return &http.Response{
		StatusCode: s.status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(s.body)),
	}
}

func newTestClient(t *testing.T, transport *captureTransport, tokens TokenSource) *Client {
	t.Helper()
	client, err := New(Options{
		Name:       "remote",
		BaseURL:    "https://gen.example.com",
		Model:      "studio-1",
		Tokens:     tokens,
		HTTPClient: &http.Client{Transport: transport},
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func podcastRequest() providers.Request {
	p := genparams.Params{}
	p.Normalize(string(domain.ContentTypePodcastAudio), "en")
	return providers.Request{
		RecordID:    "44444444-0000-4000-8000-000000000001",
		JobID:       "44444444-0000-4000-8000-000000000002",
		UserID:      "44444444-0000-4000-8000-000000000003",
		ContentType: domain.ContentTypePodcastAudio,
		Params:      p,
	}
}

func TestGenerateInlineAsset(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	audio := []byte("RIFF....WAVEfmt ")
	transport.setJSONResponse("/v1/generate", map[string]any{
		"data":            base64.StdEncoding.EncodeToString(audio),
		"mimeType":        "audio/wav",
		"durationSeconds": 180.0,
		"qualityScore":    0.9,
	})
	client := newTestClient(t, transport, tokenMap{"remote": "tok-123"})

	res, err := client.Generate(context.Background(), podcastRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !bytes.Equal(res.Data, audio) {
		t.Fatalf("asset bytes mismatch")
	}
	if res.MimeType != "audio/wav" {
		t.Fatalf("mime = %q, want audio/wav", res.MimeType)
	}
	if res.Duration != 180 || res.QualityScore != 0.9 {
		t.Fatalf("metadata = (%v, %v), want (180, 0.9)", res.Duration, res.QualityScore)
	}

	if transport.lastAuth != "Bearer tok-123" {
		t.Fatalf("authorization = %q, want Bearer tok-123", transport.lastAuth)
	}
	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["contentType"] != "podcast-audio" {
		t.Fatalf("contentType = %v, want podcast-audio", payload["contentType"])
	}
	if payload["model"] != "studio-1" {
		t.Fatalf("model = %v, want studio-1", payload["model"])
	}
	params, ok := payload["params"].(map[string]any)
	if !ok {
		t.Fatalf("params missing from payload")
	}
	if params["voice"] != genparams.DefaultVoice {
		t.Fatalf("params.voice = %v, want %s", params["voice"], genparams.DefaultVoice)
	}
}

func TestGenerateDownloadsURLAsset(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.setJSONResponse("/v1/generate", map[string]any{
		"url": "https://cdn.example.com/assets/out.png",
	})
	raster := []byte{0x89, 'P', 'N', 'G'}
	transport.setBinaryResponse("https://cdn.example.com/assets/out.png", raster)
	client := newTestClient(t, transport, tokenMap{"remote": "tok-123"})

	res, err := client.Generate(context.Background(), podcastRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !bytes.Equal(res.Data, raster) {
		t.Fatalf("downloaded bytes mismatch")
	}
	if res.MimeType != "image/png" {
		t.Fatalf("mime = %q, want image/png from download", res.MimeType)
	}
}

func TestGenerateDefaultsMimeType(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.setJSONResponse("/v1/generate", map[string]any{
		"data": base64.StdEncoding.EncodeToString([]byte("bytes")),
	})
	client := newTestClient(t, transport, tokenMap{"remote": "tok-123"})

	res, err := client.Generate(context.Background(), podcastRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.MimeType != "audio/mpeg" {
		t.Fatalf("mime = %q, want audio/mpeg fallback", res.MimeType)
	}
}

func TestGenerateMapsServiceError(t *testing.T) {
	// API-level failures can arrive inside a 200 envelope.
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.setJSONResponse("/v1/generate", map[string]any{
		"code":    "resource_exhausted",
		"message": "quota exhausted for model",
	})
	client := newTestClient(t, transport, tokenMap{"remote": "tok-123"})

	_, err := client.Generate(context.Background(), podcastRequest())
	var call *providers.CallError
	if !errors.As(err, &call) {
		t.Fatalf("error = %v, want CallError", err)
	}
	if call.Code != "resource_exhausted" {
		t.Fatalf("code = %q, want resource_exhausted", call.Code)
	}
	if call.Message != "quota exhausted for model" {
		t.Fatalf("message = %q", call.Message)
	}
	if call.RawResponse == "" {
		t.Fatalf("raw response not captured")
	}
}

func TestGenerateMapsHTTPStatus(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.setStatusResponse("/v1/generate", http.StatusServiceUnavailable, `{"code":"unavailable","message":"try again later"}`)
	client := newTestClient(t, transport, tokenMap{"remote": "tok-123"})

	_, err := client.Generate(context.Background(), podcastRequest())
	var call *providers.CallError
	if !errors.As(err, &call) {
		t.Fatalf("error = %v, want CallError", err)
	}
	if call.Code != "unavailable" || call.Message != "try again later" {
		t.Fatalf("call = (%q, %q), want body detail", call.Code, call.Message)
	}

	transport.setStatusResponse("/v1/generate", http.StatusInternalServerError, "boom")
	_, err = client.Generate(context.Background(), podcastRequest())
	if !errors.As(err, &call) {
		t.Fatalf("error = %v, want CallError", err)
	}
	if call.Code != "500" {
		t.Fatalf("code = %q, want 500 from status line", call.Code)
	}
	if call.RawResponse != "boom" {
		t.Fatalf("raw response = %q, want boom", call.RawResponse)
	}
}

func TestGenerateWithoutToken(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	client := newTestClient(t, transport, tokenMap{})

	_, err := client.Generate(context.Background(), podcastRequest())
	var call *providers.CallError
	if !errors.As(err, &call) {
		t.Fatalf("error = %v, want CallError", err)
	}
	if call.Code != "invalid_api_key" {
		t.Fatalf("code = %q, want invalid_api_key", call.Code)
	}
	if transport.calls != 0 {
		t.Fatalf("expected no HTTP call without a token, got %d", transport.calls)
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(Options{BaseURL: "https://gen.example.com"}); err == nil {
		t.Fatalf("expected error without a token source")
	}
	if _, err := New(Options{Tokens: tokenMap{}}); err == nil {
		t.Fatalf("expected error without a base url")
	}
}
