package capability

import (
	"context"
	"runtime"
	"sync"
)

// Grant is a held capability. Release must be called once the holder is done with it.
type Grant interface {
	Kind() Kind
	Release() error
}

// Acquirer obtains one kind of capability. Implementations return ErrDenied when the user
// refuses.
type Acquirer interface {
	Kind() Kind
	Acquire(ctx context.Context) (Grant, error)
}

// CameraGrant stands in for an open video stream.
type CameraGrant struct {
	Facing string
	release
}

func (CameraGrant) Kind() Kind { return Camera }

// LocationGrant carries a single position fix.
type LocationGrant struct {
	Latitude  float64
	Longitude float64
	release
}

func (LocationGrant) Kind() Kind { return Location }

type MicrophoneGrant struct {
	SampleRate int
	release
}

func (MicrophoneGrant) Kind() Kind { return Microphone }

type BatteryGrant struct {
	Level    float64
	Charging bool
	release
}

func (BatteryGrant) Kind() Kind { return Battery }

type DeviceGrant struct {
	Platform string
	Arch     string
	release
}

func (DeviceGrant) Kind() Kind { return Device }

type release struct {
	fn func()
}

// Release is idempotent.
func (r *release) Release() error {
	if r.fn != nil {
		r.fn()
		r.fn = nil
	}
	return nil
}

// Stub is an Acquirer that hands out fixed grants. Denied makes it refuse.
type Stub struct {
	Denied bool

	// Released counts grants handed back.
	Released int

	kind Kind
	mu   sync.Mutex
}

func NewStub(k Kind) *Stub { return &Stub{kind: k} }

func (s *Stub) Kind() Kind { return s.kind }

func (s *Stub) Acquire(ctx context.Context) (Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Denied {
		return nil, ErrDenied
	}
	rel := release{fn: func() {
		s.mu.Lock()
		s.Released++
		s.mu.Unlock()
	}}
	switch s.kind {
	case Camera:
		return &CameraGrant{Facing: "user", release: rel}, nil
	case Location:
		return &LocationGrant{Latitude: 41.2995, Longitude: 69.2401, release: rel}, nil
	case Microphone:
		return &MicrophoneGrant{SampleRate: 44100, release: rel}, nil
	case Battery:
		return &BatteryGrant{Level: 1, release: rel}, nil
	case Device:
		return &DeviceGrant{Platform: runtime.GOOS, Arch: runtime.GOARCH, release: rel}, nil
	}
	return nil, ErrUnknownKind
}

// Stubs returns one stub acquirer per kind.
func Stubs() map[Kind]*Stub {
	out := make(map[Kind]*Stub, len(kindNames))
	for _, k := range All() {
		out[k] = NewStub(k)
	}
	return out
}
