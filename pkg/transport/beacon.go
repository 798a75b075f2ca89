package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mrlm-net/eventbeacon/pkg/event"
)

// DefaultMaxPayload matches the 64 KiB in-flight limit browsers apply to beacons.
const DefaultMaxPayload = 64 * 1024

var (
	ErrQueueFull       = errors.New("beacon queue is full")
	ErrPayloadTooLarge = errors.New("beacon payload exceeds limit")
	ErrBeaconClosed    = errors.New("beacon is closed")
)

// Beacon queues a best-effort request without blocking. SendBeacon reports
// whether the URL was queued, not whether it was delivered.
type Beacon interface {
	SendBeacon(url string) bool
}

type BeaconOption func(*beaconConfig)

type beaconConfig struct {
	Client     *http.Client
	QueueSize  int
	MaxPayload int
	Emitter    event.Emitter
}

// WithBeaconClient sets the HTTP client used by the beacon worker.
func WithBeaconClient(c *http.Client) BeaconOption {
	return func(cfg *beaconConfig) { cfg.Client = c }
}

// WithQueueSize sets how many beacons may wait for the worker.
func WithQueueSize(n int) BeaconOption { return func(c *beaconConfig) { c.QueueSize = n } }

// WithMaxPayload sets the largest URL, in bytes, accepted by SendBeacon.
func WithMaxPayload(n int) BeaconOption { return func(c *beaconConfig) { c.MaxPayload = n } }

// WithBeaconEmitter sets the event.Emitter receiving worker lifecycle events.
func WithBeaconEmitter(e event.Emitter) BeaconOption {
	return func(c *beaconConfig) { c.Emitter = e }
}

// QueueBeacon is a Beacon backed by a bounded queue and a single worker
// goroutine that POSTs each URL with an empty body. Delivery outcomes are
// only visible as lifecycle events.
type QueueBeacon struct {
	client     *http.Client
	maxPayload int
	emitter    event.Emitter

	mu     sync.RWMutex
	closed bool
	queue  chan string
	done   chan struct{}
}

// NewQueueBeacon starts the worker. Defaults: queue of 64, DefaultMaxPayload,
// 10s client timeout.
func NewQueueBeacon(opts ...BeaconOption) *QueueBeacon {
	cfg := &beaconConfig{QueueSize: 64, MaxPayload: DefaultMaxPayload}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}

	b := &QueueBeacon{
		client:     cfg.Client,
		maxPayload: cfg.MaxPayload,
		emitter:    event.Normalize(cfg.Emitter),
		queue:      make(chan string, cfg.QueueSize),
		done:       make(chan struct{}),
	}
	go b.run()
	return b
}

// SendBeacon implements Beacon.
func (b *QueueBeacon) SendBeacon(url string) bool {
	return b.TrySend(url) == nil
}

// TrySend queues url and returns the reason when it cannot.
func (b *QueueBeacon) TrySend(url string) error {
	if b.maxPayload > 0 && len(url) > b.maxPayload {
		return ErrPayloadTooLarge
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBeaconClosed
	}
	select {
	case b.queue <- url:
		return nil
	default:
		return ErrQueueFull
	}
}

// Available reports whether the beacon still accepts payloads.
func (b *QueueBeacon) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Close stops accepting beacons and waits for queued ones to be sent or for
// ctx to end, whichever comes first.
func (b *QueueBeacon) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *QueueBeacon) run() {
	defer close(b.done)
	for url := range b.queue {
		b.post(url)
	}
}

func (b *QueueBeacon) post(url string) {
	ctx := context.Background()
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	if err != nil {
		event.EmitError(ctx, b.emitter, "beacon_request_new", "", err)
		return
	}
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	resp, err := b.client.Do(req)
	if err != nil {
		event.EmitError(ctx, b.emitter, "beacon_request_do", "", err)
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, maxImageBody)
	resp.Body.Close()
	event.EmitLifecycle(ctx, b.emitter, "beacon_sent", "", int64(time.Since(start)), nil, map[string]interface{}{"status": resp.Status, "url": url})
}
