package transport

// Capabilities probes the delivery environment. Implementations are queried
// on every send, never cached.
type Capabilities interface {
	// HasNavigator reports whether a beacon host is configured at all.
	HasNavigator() bool
	// SupportsBeacon reports whether beacon sends can currently be queued.
	SupportsBeacon() bool
}

// StaticCapabilities reports fixed answers. Useful for tests and for
// forcing the image transport.
type StaticCapabilities struct {
	Navigator bool
	Beacon    bool
}

func (s StaticCapabilities) HasNavigator() bool   { return s.Navigator }
func (s StaticCapabilities) SupportsBeacon() bool { return s.Beacon }

// BeaconCapabilities derives support from a Beacon. A Beacon that also
// implements Available() bool is consulted on every probe.
type BeaconCapabilities struct {
	Beacon Beacon
}

func (c BeaconCapabilities) HasNavigator() bool { return c.Beacon != nil }

func (c BeaconCapabilities) SupportsBeacon() bool {
	if c.Beacon == nil {
		return false
	}
	if a, ok := c.Beacon.(interface{ Available() bool }); ok {
		return a.Available()
	}
	return true
}
