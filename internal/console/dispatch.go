package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mrlm-net/eventbeacon/internal/otel"
	"github.com/mrlm-net/eventbeacon/pkg/dispatch"
	"github.com/mrlm-net/eventbeacon/pkg/transport"
)

const serviceName = "eventbeacon-console"

// dispatchEvent sends cfg.Action once and waits for completion. It returns an
// exit code.
func dispatchEvent(ctx context.Context, cfg consoleConfig, stdout, stderr io.Writer) int {
	shutdown, err := otel.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		fmt.Fprintf(stderr, "otel setup failed: %v\n", err)
		return 1
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			fmt.Fprintf(stderr, "otel shutdown: %v\n", err)
		}
	}()

	emitter, be := makeEmitter(cfg.Output, stdout)

	var (
		images transport.ImageLoader
		beacon interface {
			transport.Beacon
			Close(context.Context) error
		}
	)
	if cfg.DryRun {
		dr := &dryRunTransport{w: stdout}
		images, beacon = dr, dr
	} else {
		images = transport.NewHTTPImageLoader(transport.WithEmitter(emitter))
		beacon = transport.NewQueueBeacon(transport.WithQueueSize(cfg.QueueSize), transport.WithBeaconEmitter(emitter))
	}

	d := dispatch.NewDispatcher(dispatch.Config{Domain: cfg.Domain},
		dispatch.WithImageLoader(images),
		dispatch.WithBeacon(beacon),
		dispatch.WithEmitter(emitter),
	)

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	res, err := d.SendAndWait(waitCtx, cfg.Action, cfg.Fields, dispatch.WithTransport(cfg.Transport))
	code := 0
	switch {
	case errors.Is(err, dispatch.ErrInvalidAction):
		fmt.Fprintf(stderr, "%v\n", err)
		code = 2
	case err != nil:
		fmt.Fprintf(stderr, "send did not complete: %v\n", err)
		code = 1
	default:
		fmt.Fprintf(stdout, "sent %s via %s: %s\n", res.Action, cfg.Transport, res.Params.Encode())
	}

	// Queued beacons are flushed before exit.
	if err := beacon.Close(waitCtx); err != nil {
		fmt.Fprintf(stderr, "beacon flush: %v\n", err)
		code = 1
	}

	if be != nil {
		if err := writeReport(cfg.OutFile, be.Events(), stdout); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
	}
	return code
}

// dryRunTransport prints URLs instead of sending them. Every image loads and
// every beacon is queued.
type dryRunTransport struct {
	mu sync.Mutex
	w  io.Writer
}

func (t *dryRunTransport) Load(_ context.Context, url string, onLoad func(), _ func(error)) {
	t.print("GET", url)
	if onLoad != nil {
		onLoad()
	}
}

func (t *dryRunTransport) SendBeacon(url string) bool {
	t.print("POST", url)
	return true
}

func (t *dryRunTransport) Close(context.Context) error { return nil }

func (t *dryRunTransport) print(method, url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "dry-run %s %s\n", method, url)
}
