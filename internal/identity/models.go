package identity

import (
	"fmt"
	"math"
	"time"

	"github.com/olimtoy/olimtoy/internal/capability"
)

// Role tags the single account a process holds.
type Role string

const (
	RoleGuardian  Role = "guardian"
	RoleDependent Role = "dependent"
)

const (
	// FreeDependentLimit applies while the entitlement is inactive.
	FreeDependentLimit = 1
	// EntitledDependentLimit applies while the entitlement is active.
	EntitledDependentLimit = 10
	// EntitlementPeriod is granted by each successful activation.
	EntitlementPeriod = 30 * 24 * time.Hour
	// DefaultTrialDays is carried on every account; nothing consumes it yet.
	DefaultTrialDays = 7
)

// Entitlement is the time-boxed premium flag.
type Entitlement struct {
	Active    bool
	ExpiresAt *time.Time
	TrialDays int
}

// DaysLeft rounds the remaining window up to whole days; 0 when inactive or past.
func (e Entitlement) DaysLeft(now time.Time) int {
	if !e.Active || e.ExpiresAt == nil {
		return 0
	}
	left := e.ExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// Expired reports whether an active entitlement has run past its window. It never changes
// the account; entitlement is only mutated by activation.
func (e Entitlement) Expired(now time.Time) bool {
	return e.Active && e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// Account is the one authenticated identity of this install.
type Account struct {
	ID             string
	Name           string
	ContactNumber  string
	Role           Role
	CreatedAt      time.Time
	Entitlement    Entitlement
	DependentCount int
	DependentLimit int
}

func (a Account) IsGuardian() bool { return a.Role == RoleGuardian }

// CanAddMoreDependents is the hard capacity limit for the next link.
func (a Account) CanAddMoreDependents() bool {
	return a.DependentCount < a.DependentLimit
}

// NeedsUpgradeForMoreDependents is the upgrade nudge. It differs from CanAddMoreDependents
// at count == limit == 1 only in intent, and the presentation branches on both.
func (a Account) NeedsUpgradeForMoreDependents() bool {
	return !a.Entitlement.Active && a.DependentCount >= 1
}

// premiumCapabilities are only usable while the entitlement is active.
var premiumCapabilities = map[capability.Kind]bool{
	capability.Microphone: true,
}

// CanUse returns ErrEntitlementRequired when k is a premium capability and the entitlement is
// inactive. Expiry is not checked here; activation is the only thing that changes Active.
func (a Account) CanUse(k capability.Kind) error {
	if premiumCapabilities[k] && !a.Entitlement.Active {
		return fmt.Errorf("%w: %s", ErrEntitlementRequired, k)
	}
	return nil
}

func limitFor(active bool) int {
	if active {
		return EntitledDependentLimit
	}
	return FreeDependentLimit
}

// Dependent is a device linked to a guardian account.
type Dependent struct {
	ID              string
	DisplayName     string
	LinkKey         string
	ParentAccountID string
	AddedDate       time.Time
}
