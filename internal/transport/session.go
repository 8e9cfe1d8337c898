// Package transport wraps the HTTP session used to talk to the CAROL
// probe/export endpoints, in the style of antfly-go's sendRequest: one
// shared *http.Client, sonic for marshaling, and non-2xx responses turned
// into errors on both the probe and the export path.
package transport

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/douglaslinsmeyer/carol-query-engine/internal/compiler"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/rules"
)

// Default endpoints, per spec.md §6.
const (
	ProbeURL  = "https://data.ntsb.gov/carol-main-public/api/Query/Main"
	ExportURL = "https://data.ntsb.gov/carol-main-public/api/Query/FileExport"

	// userAgent is a plausible desktop browser string, mandatory per
	// spec.md §6 — the endpoint rejects anything that looks scripted.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	requestTimeout = 60 * time.Second
)

// ProbeResult is the decoded response from the probe endpoint.
type ProbeResult struct {
	ResultListCount       int  `json:"ResultListCount"`
	MaxResultCountReached bool `json:"MaxResultCountReached"`
}

// ExportResult carries the raw archive and the filename the server chose,
// parsed from its Content-Disposition header.
type ExportResult struct {
	Body     []byte
	Filename string
}

// Session is a reusable HTTP client bound to the probe/export endpoints.
// Safe for concurrent use by multiple executor workers: *http.Client
// already pools connections internally.
type Session struct {
	client    *http.Client
	probeURL  string
	exportURL string
}

// New builds a Session with a 60s per-request timeout and a shared
// transport for connection reuse across workers.
func New() *Session {
	return &Session{
		client: &http.Client{
			Timeout:   requestTimeout,
			Transport: &http.Transport{MaxIdleConnsPerHost: 32},
		},
		probeURL:  ProbeURL,
		exportURL: ExportURL,
	}
}

// Probe submits a probe payload and returns the decoded result count.
func (s *Session) Probe(ctx context.Context, payload compiler.ProbePayload) (*ProbeResult, error) {
	body, err := s.post(ctx, s.probeURL, payload)
	if err != nil {
		return nil, err
	}
	var result ProbeResult
	if err := sonic.Unmarshal(body, &result); err != nil {
		return nil, rules.NewQueryError(rules.KindTransport, "decoding probe response: %v", err)
	}
	return &result, nil
}

// Export submits an export payload and returns the archive bytes plus the
// server-chosen filename.
func (s *Session) Export(ctx context.Context, payload compiler.ExportPayload) (*ExportResult, error) {
	req, err := s.newRequest(ctx, s.exportURL, payload)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, rules.NewQueryError(rules.KindTransport, "export request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rules.NewQueryError(rules.KindTransport, "reading export response: %v", err)
	}
	if resp.StatusCode >= 300 {
		return nil, rules.NewQueryError(rules.KindTransport, "export returned status %d", resp.StatusCode)
	}

	filename := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	return &ExportResult{Body: body, Filename: filename}, nil
}

func (s *Session) post(ctx context.Context, url string, payload any) ([]byte, error) {
	req, err := s.newRequest(ctx, url, payload)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, rules.NewQueryError(rules.KindTransport, "request to %s: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rules.NewQueryError(rules.KindTransport, "reading response from %s: %v", url, err)
	}
	if resp.StatusCode >= 300 {
		return nil, rules.NewQueryError(rules.KindTransport, "%s returned status %d: %s", url, resp.StatusCode, string(body))
	}
	return body, nil
}

func (s *Session) newRequest(ctx context.Context, url string, payload any) (*http.Request, error) {
	encoded, err := sonic.Marshal(payload)
	if err != nil {
		return nil, rules.NewQueryError(rules.KindTransport, "encoding request body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, rules.NewQueryError(rules.KindTransport, "building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
