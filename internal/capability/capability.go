// Package capability models the device capabilities a role must resolve before reaching its
// dashboard. Each kind has its own acquirer and grant type; the flow only sees outcomes.
package capability

import (
	"context"
	"errors"
	"fmt"
)

type Kind int

const (
	Camera Kind = iota
	Location
	Microphone
	Battery
	Device
)

var kindNames = [...]string{
	Camera:     "camera",
	Location:   "location",
	Microphone: "microphone",
	Battery:    "battery",
	Device:     "device",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// All lists every kind in display order.
func All() []Kind {
	return []Kind{Camera, Location, Microphone, Battery, Device}
}

type Outcome int

const (
	Pending Outcome = iota
	Granted
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "pending"
	}
}

// Resolved is true for both a grant and a denial.
func (o Outcome) Resolved() bool { return o == Granted || o == Denied }

var (
	ErrUnknownKind = errors.New("unknown capability")
	ErrNotTracked  = errors.New("capability not requested for this role")
	ErrBadOutcome  = errors.New("outcome must be granted or denied")
	ErrDenied      = errors.New("capability denied")
)

// Set tracks the outcome of each required kind.
type Set struct {
	order    []Kind
	outcomes map[Kind]Outcome
}

func NewSet(kinds ...Kind) *Set {
	s := &Set{outcomes: make(map[Kind]Outcome, len(kinds))}
	for _, k := range kinds {
		if _, dup := s.outcomes[k]; dup {
			continue
		}
		s.order = append(s.order, k)
		s.outcomes[k] = Pending
	}
	return s
}

func (s *Set) Kinds() []Kind {
	out := make([]Kind, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Set) Outcome(k Kind) Outcome { return s.outcomes[k] }

func (s *Set) Resolve(k Kind, o Outcome) error {
	if !o.Resolved() {
		return ErrBadOutcome
	}
	if _, ok := s.outcomes[k]; !ok {
		return fmt.Errorf("%w: %s", ErrNotTracked, k)
	}
	s.outcomes[k] = o
	return nil
}

// Retry puts k back to pending so it can be asked again.
func (s *Set) Retry(k Kind) error {
	if _, ok := s.outcomes[k]; !ok {
		return fmt.Errorf("%w: %s", ErrNotTracked, k)
	}
	s.outcomes[k] = Pending
	return nil
}

func (s *Set) AllResolved() bool {
	for _, k := range s.order {
		if !s.outcomes[k].Resolved() {
			return false
		}
	}
	return true
}

// Pending returns the kinds still waiting for an answer.
func (s *Set) Pending() []Kind {
	var out []Kind
	for _, k := range s.order {
		if !s.outcomes[k].Resolved() {
			out = append(out, k)
		}
	}
	return out
}

// Request acquires and immediately releases a capability, turning the result into an outcome.
// A refusal is a normal denial; any other failure is reported alongside the denial.
func Request(ctx context.Context, a Acquirer) (Outcome, error) {
	g, err := a.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrDenied) {
			return Denied, nil
		}
		return Denied, fmt.Errorf("acquire %s: %w", a.Kind(), err)
	}
	if err := g.Release(); err != nil {
		return Granted, fmt.Errorf("release %s: %w", a.Kind(), err)
	}
	return Granted, nil
}
