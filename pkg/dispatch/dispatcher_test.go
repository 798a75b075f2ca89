package dispatch

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mrlm-net/eventbeacon/pkg/event"
	"github.com/mrlm-net/eventbeacon/pkg/query"
	"github.com/mrlm-net/eventbeacon/pkg/transport"
)

// fakeImageLoader completes every load synchronously with LoadErr.
type fakeImageLoader struct {
	mu      sync.Mutex
	urls    []string
	hooks   int
	LoadErr error
}

func (f *fakeImageLoader) Load(_ context.Context, u string, onLoad func(), onError func(error)) {
	f.mu.Lock()
	f.urls = append(f.urls, u)
	if onLoad != nil || onError != nil {
		f.hooks++
	}
	f.mu.Unlock()
	if f.LoadErr != nil {
		if onError != nil {
			onError(f.LoadErr)
		}
		return
	}
	if onLoad != nil {
		onLoad()
	}
}

func (f *fakeImageLoader) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

type fakeBeacon struct {
	mu     sync.Mutex
	urls   []string
	Queued bool
}

func (f *fakeBeacon) SendBeacon(u string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, u)
	return f.Queued
}

type callbackRecorder struct {
	mu    sync.Mutex
	calls []Result
}

func (c *callbackRecorder) Callback(action string, params query.Params) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Result{Action: action, Params: params})
}

func (c *callbackRecorder) Calls() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Result(nil), c.calls...)
}

var fixedNow = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

var testFields = Fields{PID: "plc-1", CID: "cmp 2", UUID: "req-3", CRE: "cre&4"}

func TestSendImageBuildsURL(t *testing.T) {
	images := &fakeImageLoader{}
	d := NewDispatcher(Config{Domain: "https://example.com/"}, WithImageLoader(images), WithClock(fixedClock))

	d.Send(context.Background(), "  VIEW ", testFields)

	urls := images.URLs()
	require.Len(t, urls, 1)
	ms := strconv.FormatInt(fixedNow.UnixMilli(), 10)
	require.Equal(t, "https://example.com/e/view.gif?pid=plc-1&cid=cmp+2&uuid=req-3&cre=cre%264&_="+ms, urls[0])
	require.Zero(t, images.hooks)
}

func TestSendRoundTripsFields(t *testing.T) {
	images := &fakeImageLoader{}
	d := NewDispatcher(Config{}, WithImageLoader(images))

	d.Send(context.Background(), "click", testFields)

	u, err := url.Parse(images.URLs()[0])
	require.NoError(t, err)
	require.Equal(t, "/e/click.gif", u.Path)
	q := u.Query()
	require.Equal(t, testFields.PID, q.Get("pid"))
	require.Equal(t, testFields.CID, q.Get("cid"))
	require.Equal(t, testFields.UUID, q.Get("uuid"))
	require.Equal(t, testFields.CRE, q.Get("cre"))
	_, err = strconv.ParseInt(q.Get("_"), 10, 64)
	require.NoError(t, err)
}

func TestSendOmitsUndefinedFields(t *testing.T) {
	images := &fakeImageLoader{}
	d := NewDispatcher(Config{}, WithImageLoader(images), WithClock(fixedClock))

	d.Send(context.Background(), "load", Fields{CID: "c1"})

	u, err := url.Parse(images.URLs()[0])
	require.NoError(t, err)
	require.Equal(t, "cid=c1&_="+strconv.FormatInt(fixedNow.UnixMilli(), 10), u.RawQuery)
}

func TestSendInvalidAction(t *testing.T) {
	for _, action := range []string{"", "   ", "\t\n"} {
		t.Run(strconv.Quote(action), func(t *testing.T) {
			images := &fakeImageLoader{}
			beacon := &fakeBeacon{Queued: true}
			be := event.NewBufferingEmitter()
			cb := &callbackRecorder{}
			d := NewDispatcher(Config{}, WithImageLoader(images), WithBeacon(beacon), WithEmitter(be))

			d.Send(context.Background(), action, testFields, WithCallback(cb.Callback))
			d.Send(context.Background(), action, testFields, WithTransport(TransportBeacon), WithCallback(cb.Callback))

			require.Empty(t, images.URLs())
			require.Empty(t, beacon.urls)
			require.Empty(t, cb.Calls())
			require.Equal(t, []string{StageInvalidAction, StageInvalidAction}, be.Stages())
			require.Equal(t, event.LevelWarning, be.Events()[0].Level)
		})
	}
}

func TestSendImageCallbackOnLoad(t *testing.T) {
	images := &fakeImageLoader{}
	cb := &callbackRecorder{}
	be := event.NewBufferingEmitter()
	d := NewDispatcher(Config{}, WithImageLoader(images), WithEmitter(be))

	d.Send(context.Background(), "view", testFields, WithCallback(cb.Callback))

	calls := cb.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "view", calls[0].Action)
	v, ok := calls[0].Params.Get("pid")
	require.True(t, ok)
	require.Equal(t, "plc-1", v)
	require.Empty(t, be.Events())
}

func TestSendImageCallbackOnError(t *testing.T) {
	images := &fakeImageLoader{LoadErr: errors.New("boom")}
	cb := &callbackRecorder{}
	be := event.NewBufferingEmitter()
	d := NewDispatcher(Config{}, WithImageLoader(images), WithEmitter(be))

	d.Send(context.Background(), "view", testFields, WithCallback(cb.Callback))

	require.Len(t, cb.Calls(), 1)
	events := be.Events()
	require.Len(t, events, 1)
	require.Equal(t, StageImageError, events[0].Stage)
	require.Equal(t, event.LevelWarning, events[0].Level)
	require.Equal(t, "boom", events[0].Payload["error"])
	require.NotEmpty(t, events[0].TraceID)
}

func TestSendBeaconQueued(t *testing.T) {
	images := &fakeImageLoader{}
	beacon := &fakeBeacon{Queued: true}
	cb := &callbackRecorder{}
	be := event.NewBufferingEmitter()
	d := NewDispatcher(Config{Domain: "https://example.com"}, WithImageLoader(images), WithBeacon(beacon), WithEmitter(be), WithClock(fixedClock))

	d.Send(context.Background(), "load", testFields, WithTransport(TransportBeacon), WithCallback(cb.Callback))

	require.Len(t, beacon.urls, 1)
	require.Contains(t, beacon.urls[0], "https://example.com/e/load.gif?pid=plc-1")
	require.Empty(t, images.URLs())
	require.Len(t, cb.Calls(), 1)
	require.Empty(t, be.Events())
}

func TestSendBeaconRejectedFallsBack(t *testing.T) {
	images := &fakeImageLoader{}
	beacon := &fakeBeacon{Queued: false}
	cb := &callbackRecorder{}
	be := event.NewBufferingEmitter()
	d := NewDispatcher(Config{}, WithImageLoader(images), WithBeacon(beacon), WithEmitter(be))

	d.Send(context.Background(), "load", testFields, WithTransport(TransportBeacon), WithCallback(cb.Callback))

	require.Len(t, beacon.urls, 1)
	require.Len(t, images.URLs(), 1)
	require.Equal(t, beacon.urls[0], images.URLs()[0])
	require.Len(t, cb.Calls(), 1)
	require.Empty(t, be.Events())
}

func TestSendBeaconRejectedWithoutCallback(t *testing.T) {
	images := &fakeImageLoader{}
	d := NewDispatcher(Config{}, WithImageLoader(images), WithBeacon(&fakeBeacon{}))

	d.Send(context.Background(), "load", testFields, WithTransport(TransportBeacon))

	require.Len(t, images.URLs(), 1)
	require.Zero(t, images.hooks)
}

func TestSendBeaconUnavailableFallsBack(t *testing.T) {
	images := &fakeImageLoader{}
	cb := &callbackRecorder{}
	be := event.NewBufferingEmitter()
	d := NewDispatcher(Config{}, WithImageLoader(images), WithEmitter(be))

	d.Send(context.Background(), "click", testFields, WithTransport(TransportBeacon), WithCallback(cb.Callback))

	require.Len(t, images.URLs(), 1)
	require.Len(t, cb.Calls(), 1)
	require.Equal(t, "click", cb.Calls()[0].Action)
	require.Equal(t, []string{StageNavigatorMissing, StageBeaconUnavailable}, be.Stages())
	require.Equal(t, event.LevelInfo, be.Events()[1].Level)
}

func TestSendBeaconUnsupportedByProbe(t *testing.T) {
	images := &fakeImageLoader{}
	beacon := &fakeBeacon{Queued: true}
	be := event.NewBufferingEmitter()
	caps := transport.StaticCapabilities{Navigator: true, Beacon: false}
	d := NewDispatcher(Config{}, WithImageLoader(images), WithBeacon(beacon), WithCapabilities(caps), WithEmitter(be))

	d.Send(context.Background(), "click", testFields, WithTransport(TransportBeacon))

	require.Empty(t, beacon.urls)
	require.Len(t, images.URLs(), 1)
	require.Equal(t, []string{StageBeaconUnavailable}, be.Stages())
}

func TestSendBeaconClosedQueueFallsBack(t *testing.T) {
	images := &fakeImageLoader{}
	beacon := transport.NewQueueBeacon()
	require.NoError(t, beacon.Close(context.Background()))
	cb := &callbackRecorder{}
	d := NewDispatcher(Config{}, WithImageLoader(images), WithBeacon(beacon))

	d.Send(context.Background(), "view", testFields, WithTransport(TransportBeacon), WithCallback(cb.Callback))

	require.Len(t, images.URLs(), 1)
	require.Len(t, cb.Calls(), 1)
}

func TestDomainResolution(t *testing.T) {
	cases := []struct {
		name   string
		domain string
		want   string
	}{
		{name: "trailing slash", domain: "https://example.com/", want: "https://example.com"},
		{name: "many slashes", domain: "https://example.com///", want: "https://example.com"},
		{name: "bare", domain: "https://example.com", want: "https://example.com"},
		{name: "empty", domain: "", want: DefaultDomain},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDispatcher(Config{Domain: tc.domain}, WithImageLoader(&fakeImageLoader{}))
			require.Equal(t, tc.want, d.Domain())
		})
	}
}

func TestCreateURLStripsLeadingSlashes(t *testing.T) {
	d := NewDispatcher(Config{Domain: "https://example.com/"}, WithImageLoader(&fakeImageLoader{}))
	require.Equal(t, "https://example.com/e/x.gif", d.CreateURL("///e/x.gif"))
}

func TestSetConfigAppliesToNextSend(t *testing.T) {
	images := &fakeImageLoader{}
	d := NewDispatcher(Config{}, WithImageLoader(images))

	d.Send(context.Background(), "view", Fields{})
	d.SetConfig(Config{Domain: "https://other.example/"})
	d.Send(context.Background(), "view", Fields{})

	urls := images.URLs()
	require.Len(t, urls, 2)
	require.Contains(t, urls[0], DefaultDomain+"/e/view.gif?_=")
	require.Contains(t, urls[1], "https://other.example/e/view.gif?_=")
	require.Equal(t, "https://other.example/", d.Config().Domain)
}

func TestParseTransport(t *testing.T) {
	tr, err := ParseTransport("Beacon")
	require.NoError(t, err)
	require.Equal(t, TransportBeacon, tr)

	tr, err = ParseTransport("")
	require.NoError(t, err)
	require.Equal(t, TransportImage, tr)

	_, err = ParseTransport("xhr")
	require.Error(t, err)
}

func TestSendAndWait(t *testing.T) {
	images := &fakeImageLoader{}
	cb := &callbackRecorder{}
	d := NewDispatcher(Config{}, WithImageLoader(images))

	res, err := d.SendAndWait(context.Background(), "View", testFields, WithCallback(cb.Callback))

	require.NoError(t, err)
	require.Equal(t, "view", res.Action)
	require.Len(t, cb.Calls(), 1)
}

func TestSendAndWaitInvalidAction(t *testing.T) {
	images := &fakeImageLoader{}
	d := NewDispatcher(Config{}, WithImageLoader(images))

	_, err := d.SendAndWait(context.Background(), " ", testFields)

	require.ErrorIs(t, err, ErrInvalidAction)
	require.Empty(t, images.URLs())
}

// stalledImageLoader never completes, like an image whose load events never fire.
type stalledImageLoader struct{}

func (stalledImageLoader) Load(context.Context, string, func(), func(error)) {}

func TestSendAndWaitHonoursContext(t *testing.T) {
	d := NewDispatcher(Config{}, WithImageLoader(stalledImageLoader{}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.SendAndWait(ctx, "view", testFields)

	require.ErrorIs(t, err, context.DeadlineExceeded)
}
