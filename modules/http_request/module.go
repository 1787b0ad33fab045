// Package http_request provides the "http_request" resolver type. A node's
// input (after reference substitution) describes a request; its output is
// the response.
//
//	{ "url": "https://...", "method": "GET", "body": "...", "headers": {"Accept": "..."} }
//
// The output is an object with status_code, body and headers. Non-2xx
// responses are outputs, not errors; transport failures are errors.
package http_request

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/specialistvlad/liveresolver/internal/ctxlog"
	"github.com/specialistvlad/liveresolver/internal/handlers"
	"github.com/specialistvlad/liveresolver/internal/nodeid"
	"github.com/specialistvlad/liveresolver/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Name is the resolver type registered by Module.
const Name = "http_request"

const (
	// DefaultTimeout bounds a request when Module.Client is nil.
	DefaultTimeout = 30 * time.Second
	// MaxBodySize caps the response body kept in the output.
	MaxBodySize = 10 << 20
)

// Module implements the handlers.Module interface for this package.
type Module struct {
	// Client performs the requests. A pooled client with DefaultTimeout is
	// used when nil.
	Client *http.Client
}

// Input is the decoded request description.
type Input struct {
	URL     string
	Method  string
	Body    string
	Headers map[string]string
}

// NewClient returns a pooled client with the given timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// DecodeInput reads the request description out of a resolved input.
func DecodeInput(v cty.Value) (*Input, error) {
	if v.IsNull() || !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("input must be an object with a url")
	}
	in := &Input{Method: http.MethodGet, Headers: map[string]string{}}

	url, ok, err := stringAttr(v, "url")
	if err != nil {
		return nil, err
	}
	if !ok || url == "" {
		return nil, fmt.Errorf("input.url is required")
	}
	in.URL = url

	if method, ok, err := stringAttr(v, "method"); err != nil {
		return nil, err
	} else if ok && method != "" {
		in.Method = strings.ToUpper(method)
	}
	if body, ok, err := stringAttr(v, "body"); err != nil {
		return nil, err
	} else if ok {
		in.Body = body
	}

	if headers, ok := attr(v, "headers"); ok && !headers.IsNull() {
		if !headers.CanIterateElements() {
			return nil, fmt.Errorf("input.headers must be an object")
		}
		for it := headers.ElementIterator(); it.Next(); {
			k, hv := it.Element()
			if hv.IsNull() || hv.Type() != cty.String {
				return nil, fmt.Errorf("input.headers.%s must be a string", k.AsString())
			}
			in.Headers[k.AsString()] = hv.AsString()
		}
	}
	return in, nil
}

func attr(v cty.Value, name string) (cty.Value, bool) {
	if v.Type().IsObjectType() {
		if !v.Type().HasAttribute(name) {
			return cty.NilVal, false
		}
		return v.GetAttr(name), true
	}
	key := cty.StringVal(name)
	if !v.HasIndex(key).True() {
		return cty.NilVal, false
	}
	return v.Index(key), true
}

func stringAttr(v cty.Value, name string) (string, bool, error) {
	a, ok := attr(v, name)
	if !ok || a.IsNull() || value.IsAbsent(a) {
		return "", false, nil
	}
	if a.Type() != cty.String {
		return "", false, fmt.Errorf("input.%s must be a string, got %s", name, a.Type().FriendlyName())
	}
	return a.AsString(), true, nil
}

// compute returns the handler bound to client.
func compute(client *http.Client) handlers.ComputeFunc {
	return func(ctx context.Context, id nodeid.ID, input cty.Value, deps map[nodeid.ID]cty.Value) (cty.Value, error) {
		resolved, err := value.Substitute(input, deps)
		if err != nil {
			return cty.NilVal, err
		}
		in, err := DecodeInput(resolved)
		if err != nil {
			return cty.NilVal, err
		}

		logger := ctxlog.FromContext(ctx).With("node_id", id, "method", in.Method, "url", in.URL)
		logger.Debug("Making HTTP request.")

		var body io.Reader
		if in.Body != "" {
			body = strings.NewReader(in.Body)
		}
		req, err := http.NewRequestWithContext(ctx, in.Method, in.URL, body)
		if err != nil {
			return cty.NilVal, fmt.Errorf("failed to create request: %w", err)
		}
		for k, v := range in.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return cty.NilVal, fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
		if err != nil {
			return cty.NilVal, fmt.Errorf("failed to read response body: %w", err)
		}
		logger.Debug("Received HTTP response.", "status", resp.Status, "bytes", len(bodyBytes))

		return cty.ObjectVal(map[string]cty.Value{
			"status_code": cty.NumberIntVal(int64(resp.StatusCode)),
			"body":        cty.StringVal(string(bodyBytes)),
			"headers":     headerValue(resp.Header),
		}), nil
	}
}

func headerValue(h http.Header) cty.Value {
	if len(h) == 0 {
		return cty.EmptyObjectVal
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make(map[string]cty.Value, len(keys))
	for _, k := range keys {
		attrs[k] = cty.StringVal(strings.Join(h.Values(k), ", "))
	}
	return cty.ObjectVal(attrs)
}

// Register registers the handler with the engine.
func (m *Module) Register(h *handlers.Handlers) {
	client := m.Client
	if client == nil {
		client = NewClient(DefaultTimeout)
	}
	h.RegisterHandler(Name, &handlers.RegisteredHandler{
		Description: "Performs the HTTP request described by the input.",
		Fn:          compute(client),
	})
}
