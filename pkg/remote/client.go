package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/odvcencio/pocket/pkg/object"
	"github.com/odvcencio/pocket/pkg/refs"
)

// Response limits per endpoint type.
const (
	responseLimitDefault = 2 << 20 // 2MB
	responseLimitRefs    = 8 << 20 // 8MB
	responseLimitHave    = 8 << 20 // 8MB

	// compressThreshold is the NDJSON payload size above which object
	// uploads are zstd-encoded.
	compressThreshold = 64 << 10

	// maxHaveBatch keeps have requests under server body limits.
	maxHaveBatch = 20000
)

// Client is an HTTP Transport speaking to a Server.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	token       string
	user        string
	pass        string
	maxAttempts int
	logger      *slog.Logger

	// serverCaps is learned from the first response; nil until then.
	serverCaps *Capabilities
}

var _ Transport = (*Client)(nil)

func newHTTPTransport(u *url.URL, opts Options) (*Client, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrUnsupportedURL, u.String())
	}
	creds := opts.Credentials
	if creds.Empty() && u.User != nil {
		pass, _ := u.User.Password()
		creds = &Credentials{Username: u.User.Username(), Password: pass}
	}

	base := *u
	base.User = nil
	base.RawQuery = ""
	base.Fragment = ""
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawPath = ""

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		baseURL:     strings.TrimRight(base.String(), "/"),
		httpClient:  hc,
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger.With("remote", base.Redacted()),
	}
	if !creds.Empty() {
		if strings.TrimSpace(creds.Username) == "" {
			c.token = creds.Password
		} else {
			c.user = strings.TrimSpace(creds.Username)
			c.pass = creds.Password
		}
	}
	return c, nil
}

// BaseURL returns the remote URL with credentials stripped.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Negotiate fetches the remote value of ref.
func (c *Client) Negotiate(ctx context.Context, ref string) (object.Hash, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("ref name is required")
	}
	full := refs.FullName(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+full, nil)
	if err != nil {
		return "", err
	}
	body, err := c.doWithLimit(req, http.StatusOK, responseLimitDefault, "application/json")
	if err != nil {
		return "", err
	}
	var resp refResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode ref response: %w", err)
	}
	h := object.Hash(strings.TrimSpace(resp.Hash))
	if h == "" {
		return "", fmt.Errorf("negotiate %s: %w", full, ErrNoSuchRef)
	}
	if err := object.ValidateHash(h); err != nil {
		return "", fmt.Errorf("invalid hash for ref %q: %w", full, err)
	}
	c.logger.Debug("negotiated ref", "ref", full, "hash", h.Short())
	return h, nil
}

// ListRefs returns all remote refs keyed by full name.
func (c *Client) ListRefs(ctx context.Context) (map[string]object.Hash, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/refs", nil)
	if err != nil {
		return nil, err
	}
	body, err := c.doWithLimit(req, http.StatusOK, responseLimitRefs, "application/json")
	if err != nil {
		return nil, err
	}
	var raw struct {
		Refs map[string]string `json:"refs"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode refs response: %w", err)
	}
	out := make(map[string]object.Hash, len(raw.Refs))
	for name, hash := range raw.Refs {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		h := object.Hash(strings.TrimSpace(hash))
		if err := object.ValidateHash(h); err != nil {
			return nil, fmt.Errorf("invalid hash for ref %q: %w", name, err)
		}
		out[name] = h
	}
	return out, nil
}

// HasObjects asks the remote which hashes it already stores.
func (c *Client) HasObjects(ctx context.Context, hashes []object.Hash) (map[object.Hash]bool, error) {
	hashes = uniqueHashes(hashes)
	out := make(map[object.Hash]bool, len(hashes))
	for start := 0; start < len(hashes); start += maxHaveBatch {
		end := min(start+maxHaveBatch, len(hashes))
		reqBody := haveRequest{Hashes: make([]string, 0, end-start)}
		for _, h := range hashes[start:end] {
			reqBody.Hashes = append(reqBody.Hashes, string(h))
		}
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/objects/have", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		body, err := c.doWithLimit(req, http.StatusOK, responseLimitHave, "application/json")
		if err != nil {
			return nil, err
		}
		var resp haveResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode have response: %w", err)
		}
		for _, h := range resp.Have {
			out[object.Hash(strings.TrimSpace(h))] = true
		}
	}
	return out, nil
}

// SendObjects uploads objects as newline-delimited JSON, zstd-encoded when
// the payload is large.
func (c *Client) SendObjects(ctx context.Context, records []ObjectRecord) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, rec := range records {
		if err := verifyRecord(rec); err != nil {
			return fmt.Errorf("send object %d: %w", i, err)
		}
		if err := enc.Encode(wireObject{Hash: string(rec.Hash), Type: string(rec.Type), Data: rec.Data}); err != nil {
			return fmt.Errorf("send object %d: encode: %w", i, err)
		}
	}

	payload := buf.Bytes()
	encoding := ""
	if len(payload) > compressThreshold && c.serverAccepts("zstd") {
		compressed, err := compressZstd(payload)
		if err != nil {
			return fmt.Errorf("compress objects: %w", err)
		}
		payload = compressed
		encoding = "zstd"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/objects", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	if _, err := c.doWithLimit(req, http.StatusOK, responseLimitDefault, "application/json"); err != nil {
		return err
	}
	c.logger.Debug("sent objects", "count", len(records), "bytes", len(payload), "encoding", encoding)
	return nil
}

// UpdateRef asks the remote to move name from old to new.
func (c *Client) UpdateRef(ctx context.Context, name string, old, new object.Hash) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("ref update name is required")
	}
	raw, err := json.Marshal(refUpdateRequest{Name: name, Old: string(old), New: string(new)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/refs", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if _, err := c.doWithLimit(req, http.StatusOK, responseLimitDefault, "application/json"); err != nil {
		return err
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) doWithLimit(req *http.Request, expectedStatus int, maxBytes int64, expectedContentType string) ([]byte, error) {
	c.applyHeaders(req)
	resp, err := retryDo(c.httpClient, req, c.maxAttempts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if v := resp.Header.Get(headerCapabilities); v != "" {
		caps := ParseCapabilities(v)
		c.serverCaps = &caps
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode != expectedStatus {
		return nil, statusError(req, resp.StatusCode, body)
	}

	if expectedContentType != "" {
		ct := resp.Header.Get("Content-Type")
		if ct != "" && !strings.HasPrefix(ct, expectedContentType) {
			return nil, fmt.Errorf("unexpected content type %q (expected %s) from %s %s (status %d)",
				ct, expectedContentType, req.Method, req.URL.Path, resp.StatusCode)
		}
	}
	return body, nil
}

// serverAccepts reports whether the server advertised capability. Before
// any response has been seen every client capability is assumed.
func (c *Client) serverAccepts(capability string) bool {
	if c.serverCaps == nil {
		return ParseCapabilities(ClientCapabilities).Has(capability)
	}
	return c.serverCaps.Has(capability)
}

// statusError turns a non-success response into an error that matches the
// package sentinels under errors.Is.
func statusError(req *http.Request, status int, body []byte) error {
	re := tryParseRemoteError(body)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		if re == nil {
			re = &RemoteError{Message: http.StatusText(status)}
		}
		re.Code = codeUnauthorized
		return re
	}
	if re != nil {
		return re
	}
	if status == http.StatusNotFound && strings.Contains(req.URL.Path, "/refs/") {
		return &RemoteError{Code: codeNotFound, Message: "ref not found", Detail: req.URL.Path}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Errorf("remote request failed (%s %s): %s", req.Method, req.URL.Path, msg)
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set(headerProtocol, ProtocolVersion)
	req.Header.Set(headerCapabilities, ClientCapabilities)
	req.Header.Set(headerRequestID, uuid.NewString())

	if strings.TrimSpace(c.token) != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
		return
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
}
