package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/agrihub/fieldsync/internal/errors"
)

// HTTPRemote talks to a REST-style remote service:
//
//	POST   {base}/api/{entityType}          -> {"id": "..."}
//	PUT    {base}/api/{entityType}/{id}
//	DELETE {base}/api/{entityType}/{id}
//	GET    {base}/api/{entityType}?since=ns -> [{"id","payload","updated_at"}]
type HTTPRemote struct {
	baseURL string
	client  *http.Client
	token   string
}

// HTTPOption configures an HTTPRemote.
type HTTPOption func(*HTTPRemote)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPRemote) { r.client = c }
}

// WithToken sets a bearer token attached to every request.
func WithToken(token string) HTTPOption {
	return func(r *HTTPRemote) { r.token = token }
}

// NewHTTPRemote creates an HTTP client for the remote data service.
func NewHTTPRemote(baseURL string, opts ...HTTPOption) *HTTPRemote {
	r := &HTTPRemote{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Remote = (*HTTPRemote)(nil)

// Create implements Remote.
func (r *HTTPRemote) Create(ctx context.Context, entityType string, payload json.RawMessage) (string, error) {
	body, err := r.do(ctx, http.MethodPost, r.entityURL(entityType, ""), payload)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperrors.Wrap(apperrors.ErrRemoteCall, "malformed create response", err)
	}
	if resp.ID == "" {
		return "", apperrors.New(apperrors.ErrRemoteCall, "create response carried no id")
	}
	return resp.ID, nil
}

// Update implements Remote.
func (r *HTTPRemote) Update(ctx context.Context, entityType, id string, payload json.RawMessage) error {
	_, err := r.do(ctx, http.MethodPut, r.entityURL(entityType, id), payload)
	return err
}

// Delete implements Remote.
func (r *HTTPRemote) Delete(ctx context.Context, entityType, id string) error {
	_, err := r.do(ctx, http.MethodDelete, r.entityURL(entityType, id), nil)
	return err
}

// FetchChangesSince implements Remote.
func (r *HTTPRemote) FetchChangesSince(ctx context.Context, entityType string, since time.Time) ([]Change, error) {
	u := r.entityURL(entityType, "")
	if !since.IsZero() {
		u += "?since=" + strconv.FormatInt(since.UnixNano(), 10)
	}

	body, err := r.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var wire []struct {
		ID        string          `json:"id"`
		Payload   json.RawMessage `json:"payload"`
		UpdatedAt int64           `json:"updated_at"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteCall, "malformed fetch response", err)
	}

	changes := make([]Change, 0, len(wire))
	for _, w := range wire {
		changes = append(changes, Change{
			ID:        w.ID,
			Payload:   w.Payload,
			UpdatedAt: time.Unix(0, w.UpdatedAt),
		})
	}
	return changes, nil
}

func (r *HTTPRemote) entityURL(entityType, id string) string {
	u := r.baseURL + "/api/" + url.PathEscape(entityType)
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

func (r *HTTPRemote) do(ctx context.Context, method, u string, payload json.RawMessage) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteCall, "failed to build request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteCall, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteCall, "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.New(apperrors.ErrRemoteCall,
			fmt.Sprintf("%s %s returned %d: %s", method, u, resp.StatusCode, truncate(data, 200)))
	}

	return data, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
