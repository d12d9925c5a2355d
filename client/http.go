package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"organizer/domain"
)

// DefaultTimeout bounds every request/response round trip.
const DefaultTimeout = 10 * time.Second

// RequestError is a non-2xx response from the API.
type RequestError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Field   string
}

func (e *RequestError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

// HTTP talks to the organizer API.
type HTTP struct {
	BaseURL string
	Client  *http.Client
	// Stream is used for the long-lived event stream and must not carry a
	// request timeout.
	Stream *http.Client
}

// NewHTTP returns a transport for the API at baseURL.
func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTP{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
		Stream:  &http.Client{},
	}
}

func (h *HTTP) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := h.do(ctx, http.MethodGet, "/api/data", nil, &snap)
	return snap, err
}

func (h *HTTP) CreateItem(ctx context.Context, in domain.NewItem) (domain.Item, error) {
	var it domain.Item
	err := h.do(ctx, http.MethodPost, "/api/items", in, &it)
	return it, err
}

func (h *HTTP) CreateFolder(ctx context.Context, in domain.NewFolder) (domain.Folder, error) {
	var f domain.Folder
	err := h.do(ctx, http.MethodPost, "/api/folders", in, &f)
	return f, err
}

func (h *HTTP) UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (domain.Item, error) {
	var it domain.Item
	err := h.do(ctx, http.MethodPut, "/api/items/"+url.PathEscape(id), patch, &it)
	return it, err
}

func (h *HTTP) UpdateFolder(ctx context.Context, id string, patch domain.FolderPatch) (domain.Folder, error) {
	var f domain.Folder
	err := h.do(ctx, http.MethodPut, "/api/folders/"+url.PathEscape(id), patch, &f)
	return f, err
}

func (h *HTTP) DeleteItem(ctx context.Context, id string) error {
	return h.do(ctx, http.MethodDelete, "/api/items/"+url.PathEscape(id), nil, nil)
}

func (h *HTTP) DeleteFolder(ctx context.Context, id string) error {
	return h.do(ctx, http.MethodDelete, "/api/folders/"+url.PathEscape(id), nil, nil)
}

func (h *HTTP) Reorder(ctx context.Context, b domain.ReorderBatch) error {
	return h.do(ctx, http.MethodPut, "/api/reorder", b, nil)
}

// Subscribe opens the event stream. Events are delivered to fn in arrival
// order until the stream ends or ctx is cancelled. ready runs once the server
// has accepted the subscription; an error from it closes the stream.
func (h *HTTP) Subscribe(ctx context.Context, ready func() error, fn func(domain.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+"/api/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := h.Stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return requestError(req, resp)
	}
	if ready != nil {
		if err := ready(); err != nil {
			return err
		}
	}
	return readEvents(resp.Body, fn)
}

func (h *HTTP) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.BaseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return requestError(req, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// requestError maps a failed response onto the domain errors where one
// applies so callers can use errors.Is.
func requestError(req *http.Request, resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	_ = sonic.Unmarshal(data, &body)
	re := &RequestError{
		Method:  req.Method,
		Path:    req.URL.Path,
		Status:  resp.StatusCode,
		Message: body.Message,
		Field:   body.Field,
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", domain.ErrNotFound, re)
	case resp.StatusCode == http.StatusBadRequest && body.Field != "":
		return errors.Join(&domain.ValidationError{
			Field:  body.Field,
			Reason: strings.TrimPrefix(body.Message, body.Field+" "),
		}, re)
	}
	return re
}
