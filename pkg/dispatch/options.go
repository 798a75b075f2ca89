package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/mrlm-net/eventbeacon/pkg/query"
)

// Transport selects the delivery mechanism. The zero value is the image transport.
type Transport int

const (
	TransportImage Transport = iota
	TransportBeacon
)

func (t Transport) String() string {
	if t == TransportBeacon {
		return "beacon"
	}
	return "image"
}

// ParseTransport accepts "image", "beacon" or "" (image).
func ParseTransport(s string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "image", "img":
		return TransportImage, nil
	case "beacon":
		return TransportBeacon, nil
	default:
		return TransportImage, fmt.Errorf("unknown transport %q, expected image|beacon", s)
	}
}

// SendOption configures a single Send.
type SendOption func(*sendOptions)

type sendOptions struct {
	transport Transport
	callback  Callback
}

func newSendOptions(opts []SendOption) sendOptions {
	var so sendOptions
	for _, o := range opts {
		o(&so)
	}
	return so
}

// WithTransport selects the transport for this send.
func WithTransport(t Transport) SendOption { return func(o *sendOptions) { o.transport = t } }

// WithCallback registers a completion callback for this send.
func WithCallback(cb Callback) SendOption { return func(o *sendOptions) { o.callback = cb } }

// Result is the completion of a send observed by SendAndWait.
type Result struct {
	Action string
	Params query.Params
}

// SendAndWait sends an event and blocks until its completion callback fires
// or ctx ends. A callback set through opts still runs, before SendAndWait
// returns. Unlike Send, an empty action is reported as ErrInvalidAction.
func (d *Dispatcher) SendAndWait(ctx context.Context, action string, fields Fields, opts ...SendOption) (Result, error) {
	so := newSendOptions(opts)
	if NormalizeAction(action) == "" {
		d.send(ctx, action, fields, so)
		return Result{}, ErrInvalidAction
	}

	done := make(chan Result, 1)
	user := so.callback
	so.callback = func(act string, params query.Params) {
		if user != nil {
			user(act, params)
		}
		done <- Result{Action: act, Params: params}
	}
	d.send(ctx, action, fields, so)

	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
