package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"github.com/mrlm-net/eventbeacon/pkg/event"
)

// maxImageBody bounds how much of a pixel response is read before the
// connection is released. The body itself is never inspected.
const maxImageBody = 1024

// ImageLoader fetches an event URL the way an image element would. Load
// returns immediately; exactly one of onLoad or onError is invoked once the
// request completes. Either hook may be nil.
type ImageLoader interface {
	Load(ctx context.Context, url string, onLoad func(), onError func(error))
}

type ImageOption func(*imageConfig)

type imageConfig struct {
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
	Emitter   event.Emitter
	// Redact controls whether Cookie and Set-Cookie headers are masked in
	// emitted lifecycle events. Default: true.
	Redact bool
}

// WithHTTPClient sets the client used for image requests. Its Transport is
// wrapped to emit per-hop lifecycle events.
func WithHTTPClient(c *http.Client) ImageOption { return func(cfg *imageConfig) { cfg.Client = c } }

// WithTimeout sets the per-request timeout. A timed out request is reported
// through onError.
func WithTimeout(d time.Duration) ImageOption { return func(c *imageConfig) { c.Timeout = d } }

// WithUserAgent sets the User-Agent header on outgoing requests.
func WithUserAgent(ua string) ImageOption { return func(c *imageConfig) { c.UserAgent = ua } }

// WithEmitter sets the event.Emitter receiving lifecycle events.
func WithEmitter(e event.Emitter) ImageOption { return func(c *imageConfig) { c.Emitter = e } }

// WithRedact toggles header redaction in lifecycle events.
func WithRedact(v bool) ImageOption { return func(c *imageConfig) { c.Redact = v } }

// HTTPImageLoader issues a GET per Load on its own goroutine.
type HTTPImageLoader struct {
	client    *http.Client
	userAgent string
	emitter   event.Emitter
}

// NewHTTPImageLoader builds an HTTPImageLoader. Defaults: 30s timeout,
// http.DefaultTransport, no emitter.
func NewHTTPImageLoader(opts ...ImageOption) *HTTPImageLoader {
	cfg := &imageConfig{Timeout: 30 * time.Second, Redact: true}
	for _, o := range opts {
		o(cfg)
	}
	cfg.Emitter = event.Normalize(cfg.Emitter)

	base := http.DefaultTransport
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.Client != nil {
		*client = *cfg.Client
		if client.Transport != nil {
			base = client.Transport
		}
		if client.Timeout == 0 {
			client.Timeout = cfg.Timeout
		}
	}
	client.Transport = &tracingTransport{base: base, emitter: cfg.Emitter, redact: cfg.Redact}

	return &HTTPImageLoader{client: client, userAgent: cfg.UserAgent, emitter: cfg.Emitter}
}

// Load starts the request and returns. Cancellation of ctx does not abort
// the request: like an image already attached to the page, it runs to
// completion or until the client timeout.
func (l *HTTPImageLoader) Load(ctx context.Context, targetURL string, onLoad func(), onError func(error)) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		err := l.fetch(ctx, targetURL)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if onLoad != nil {
			onLoad()
		}
	}()
}

func (l *HTTPImageLoader) fetch(ctx context.Context, targetURL string) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		event.EmitError(ctx, l.emitter, "image_request_new", "", err)
		return err
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}

	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			event.EmitLifecycle(ctx, l.emitter, "got_conn", "", int64(time.Since(start)), nil, map[string]interface{}{"reused": info.Reused, "was_idle": info.WasIdle})
		},
		TLSHandshakeDone: func(cs tls.ConnectionState, err error) {
			event.EmitLifecycle(ctx, l.emitter, "tls_handshake_done", "", int64(time.Since(start)), nil, map[string]interface{}{"negotiated_proto": cs.NegotiatedProtocol, "err": errorString(err)})
		},
		GotFirstResponseByte: func() {
			event.EmitLifecycle(ctx, l.emitter, "got_first_response_byte", "", int64(time.Since(start)), nil, nil)
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	resp, err := l.client.Do(req)
	if err != nil {
		event.EmitError(ctx, l.emitter, "image_request_do", "", err)
		return err
	}
	defer resp.Body.Close()

	n, _ := io.CopyN(io.Discard, resp.Body, maxImageBody)
	event.EmitLifecycle(ctx, l.emitter, "image_response_end", "", int64(time.Since(start)), nil, map[string]interface{}{"status": resp.Status, "bytes_read": n})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("image request: unexpected status %s", resp.Status)
	}
	return nil
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// tracingTransport wraps a RoundTripper and emits per-hop request/response details.
type tracingTransport struct {
	base    http.RoundTripper
	emitter event.Emitter
	redact  bool
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	reqHdrs := copyHeaders(req.Header)
	if t.redact {
		sanitizeHeaders(reqHdrs, true)
	}
	event.EmitLifecycle(ctx, t.emitter, "request_send", "", 0, nil, map[string]interface{}{"method": req.Method, "url": req.URL.String(), "headers": reqHdrs})

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		event.EmitError(ctx, t.emitter, "request_error", "", err)
		return nil, err
	}

	respHdrs := copyHeaders(resp.Header)
	if t.redact {
		sanitizeHeaders(respHdrs, false)
	}
	event.EmitLifecycle(ctx, t.emitter, "response_headers", "", 0, nil, map[string]interface{}{"status": resp.Status, "headers": respHdrs})

	return resp, nil
}

func copyHeaders(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// sanitizeHeaders redacts sensitive header values. If req is true, redact Authorization/Cookie; for responses redact Set-Cookie.
func sanitizeHeaders(h map[string][]string, req bool) {
	for k := range h {
		lk := strings.ToLower(k)
		if req {
			if lk == "authorization" || lk == "cookie" {
				h[k] = []string{"REDACTED"}
			}
		} else {
			if lk == "set-cookie" {
				h[k] = []string{"REDACTED"}
			}
		}
	}
}
