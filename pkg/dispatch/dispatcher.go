// Package dispatch sends client-side telemetry events to the analytics
// backend as GET URLs of the form <domain>/e/<action>.gif?<query>.
//
// Two transports are available. The image transport (default) fetches the URL
// like an <img> element and reports completion through onLoad/onError. The
// beacon transport queues the URL without blocking and falls back to the
// image transport when beacons are unsupported or the queue refuses it.
//
// Send never returns an error and never blocks on the network. A callback,
// when supplied, runs at most once per send and exactly once whenever the
// chosen transport completes. There is no timeout: callers must not assume
// completion within bounded time.
package dispatch

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrlm-net/eventbeacon/pkg/event"
	"github.com/mrlm-net/eventbeacon/pkg/query"
	"github.com/mrlm-net/eventbeacon/pkg/transport"
)

// DefaultDomain is the backend origin used when Config.Domain is empty.
const DefaultDomain = "https://fortnight.as3.io"

const tracerName = "github.com/mrlm-net/eventbeacon/pkg/dispatch"

// Diagnostic stages emitted by the dispatcher.
const (
	StageInvalidAction     = "invalid_action"
	StageNavigatorMissing  = "navigator_missing"
	StageBeaconUnavailable = "beacon_unavailable"
	StageImageError        = "image_error"
)

// ErrInvalidAction is returned by SendAndWait when the action is empty after
// normalization.
var ErrInvalidAction = errors.New("no event action was provided")

// Config is the dispatcher configuration. Replace it as a whole with SetConfig.
type Config struct {
	Domain string `json:"domain"`
}

// Fields identify the event. An empty field is undefined and left out of the URL.
type Fields struct {
	PID  string // placement id
	CID  string // campaign id
	UUID string // request correlation id
	CRE  string // creative id
}

// Callback runs once the send attempt completes.
type Callback func(action string, params query.Params)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithImageLoader sets the image transport.
func WithImageLoader(l transport.ImageLoader) Option { return func(d *Dispatcher) { d.images = l } }

// WithBeacon sets the beacon transport. Without one, beacon sends fall back
// to the image transport.
func WithBeacon(b transport.Beacon) Option { return func(d *Dispatcher) { d.beacon = b } }

// WithCapabilities overrides the capability probe. The default derives
// support from the configured beacon.
func WithCapabilities(c transport.Capabilities) Option { return func(d *Dispatcher) { d.caps = c } }

// WithEmitter sets the diagnostics sink.
func WithEmitter(e event.Emitter) Option { return func(d *Dispatcher) { d.emitter = e } }

// WithClock sets the time source for the `_` timestamp.
func WithClock(now func() time.Time) Option { return func(d *Dispatcher) { d.clock = now } }

// WithTracer sets the OpenTelemetry tracer. The default is the global provider's.
func WithTracer(t trace.Tracer) Option { return func(d *Dispatcher) { d.tracer = t } }

// Dispatcher validates events, builds their URLs and hands them to a transport.
// It is safe for concurrent use.
type Dispatcher struct {
	config  atomic.Pointer[Config]
	images  transport.ImageLoader
	beacon  transport.Beacon
	caps    transport.Capabilities
	emitter event.Emitter
	clock   func() time.Time
	tracer  trace.Tracer
}

// NewDispatcher creates a Dispatcher. An empty cfg.Domain resolves to
// DefaultDomain.
func NewDispatcher(cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{}
	for _, o := range opts {
		o(d)
	}
	d.SetConfig(cfg)
	if d.images == nil {
		d.images = transport.NewHTTPImageLoader(transport.WithEmitter(d.emitter))
	}
	if d.caps == nil {
		d.caps = transport.BeaconCapabilities{Beacon: d.beacon}
	}
	d.emitter = event.Normalize(d.emitter)
	if d.clock == nil {
		d.clock = time.Now
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	return d
}

// Config returns a copy of the current configuration.
func (d *Dispatcher) Config() Config {
	return *d.config.Load()
}

// SetConfig replaces the configuration. The next URL built sees it.
func (d *Dispatcher) SetConfig(cfg Config) {
	d.config.Store(&cfg)
}

// Domain returns the configured domain without trailing slashes, or
// DefaultDomain when none is configured.
func (d *Dispatcher) Domain() string {
	domain := d.config.Load().Domain
	if domain == "" {
		return DefaultDomain
	}
	return strings.TrimRight(domain, "/")
}

// CreateURL joins endpoint onto Domain.
func (d *Dispatcher) CreateURL(endpoint string) string {
	return d.Domain() + "/" + strings.TrimLeft(endpoint, "/")
}

// EventURL builds the fully qualified URL for action and params.
func (d *Dispatcher) EventURL(action string, params query.Params) string {
	return d.CreateURL("/e/" + action + ".gif?" + params.Encode())
}

// NormalizeAction trims and lower-cases an event action.
func NormalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}

// Send dispatches an event. It returns as soon as the transport has been
// handed the URL. An empty action emits a warning and sends nothing; the
// callback is not invoked in that case.
func (d *Dispatcher) Send(ctx context.Context, action string, fields Fields, opts ...SendOption) {
	d.send(ctx, action, fields, newSendOptions(opts))
}

func (d *Dispatcher) send(ctx context.Context, action string, fields Fields, so sendOptions) {
	traceID := uuid.NewString()
	ctx = event.WithTraceID(ctx, traceID)

	act := NormalizeAction(action)
	if act == "" {
		event.Support(ctx, d.emitter, true, StageInvalidAction, "No event action was provided. Preventing send.", event.LevelWarning, traceID, nil)
		return
	}

	ctx, span := d.tracer.Start(ctx, "eventbeacon.send", trace.WithAttributes(
		attribute.String("event.action", act),
		attribute.String("event.transport", so.transport.String()),
	))
	defer span.End()

	params := d.buildParams(fields)
	if so.transport == TransportBeacon {
		d.sendBeacon(ctx, act, params, so.callback)
	} else {
		d.sendImage(ctx, act, params, so.callback)
	}
}

func (d *Dispatcher) buildParams(f Fields) query.Params {
	params := make(query.Params, 0, 5)
	params.Set("pid", f.PID)
	params.Set("cid", f.CID)
	params.Set("uuid", f.UUID)
	params.Set("cre", f.CRE)
	params.Set("_", strconv.FormatInt(d.clock().UnixMilli(), 10))
	return params
}

func (d *Dispatcher) sendImage(ctx context.Context, act string, params query.Params, callback Callback) {
	url := d.EventURL(act, params)
	if callback == nil {
		d.images.Load(ctx, url, nil, nil)
		return
	}
	var once sync.Once
	done := func() { once.Do(func() { callback(act, params) }) }
	d.images.Load(ctx, url, done, func(err error) {
		payload := map[string]interface{}{"act": act, "params": params.Map()}
		if err != nil {
			payload["error"] = err.Error()
		}
		event.Support(ctx, d.emitter, true, StageImageError, "The image beacon failed to load.", event.LevelWarning, "", payload)
		done()
	})
}

func (d *Dispatcher) sendBeacon(ctx context.Context, act string, params query.Params, callback Callback) {
	event.Support(ctx, d.emitter, !d.caps.HasNavigator(), StageNavigatorMissing, "The beacon navigator is not defined.", event.LevelWarning, "", nil)
	if d.beacon == nil || !d.caps.SupportsBeacon() {
		event.Support(ctx, d.emitter, true, StageBeaconUnavailable, "Falling back to image transport. Beacon API unavailable.", event.LevelInfo, "", map[string]interface{}{"act": act, "params": params.Map()})
		d.sendImage(ctx, act, params, callback)
		return
	}
	if d.beacon.SendBeacon(d.EventURL(act, params)) {
		if callback != nil {
			callback(act, params)
		}
		return
	}
	d.sendImage(ctx, act, params, callback)
}
