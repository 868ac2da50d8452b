package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/olimtoy/olimtoy/internal/capability"
	"github.com/olimtoy/olimtoy/internal/store"
)

// DefaultActivationCode unlocks the entitlement when no other code is configured.
const DefaultActivationCode = "bbu2025"

// Session holds the single account of this install and keeps it in step with the store.
// Memory is only replaced after the store accepted the matching batch.
type Session struct {
	mu             sync.Mutex
	store          store.Store
	now            func() time.Time
	activationCode string

	account    *Account
	dependents []Dependent
	cachedKey  string
}

type Option func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithActivationCode(code string) Option {
	return func(s *Session) {
		if code = strings.TrimSpace(code); code != "" {
			s.activationCode = code
		}
	}
}

func NewSession(st store.Store, opts ...Option) *Session {
	s := &Session{
		store:          st,
		now:            time.Now,
		activationCode: DefaultActivationCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterGuardian creates a fresh guardian account, replacing whatever session existed.
func (s *Session) RegisterGuardian(ctx context.Context, name, contactNumber string) (Account, error) {
	name, contact, err := ValidateProfile(name, contactNumber)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct := Account{
		ID:             uuid.NewString(),
		Name:           name,
		ContactNumber:  contact,
		Role:           RoleGuardian,
		CreatedAt:      s.now(),
		Entitlement:    Entitlement{TrialDays: DefaultTrialDays},
		DependentLimit: FreeDependentLimit,
	}
	encoded, err := encodeAccount(acct)
	if err != nil {
		return Account{}, err
	}
	batch := store.NewBatch().
		Set(KeyAccount, encoded).
		Delete(KeyDependents).
		Delete(KeyCachedLink)
	if err := s.store.Apply(ctx, batch); err != nil {
		return Account{}, fmt.Errorf("register guardian: %w", err)
	}

	s.account = &acct
	s.dependents = nil
	s.cachedKey = ""
	log.Printf("identity: registered guardian %s", acct.ID)
	return acct, nil
}

// LinkDependent attaches a device by its link key to the guardian account.
func (s *Session) LinkDependent(ctx context.Context, key, displayName string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.guardianLocked()
	if err != nil {
		return Account{}, err
	}
	key, err = NormalizeLinkKey(key)
	if err != nil {
		return Account{}, err
	}
	if !acct.CanAddMoreDependents() {
		return Account{}, fmt.Errorf("%w: %d of %d", ErrCapacityExceeded, acct.DependentCount, acct.DependentLimit)
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = defaultDisplayName(key)
	}
	now := s.now()
	dep := Dependent{
		ID:              uuid.NewString(),
		DisplayName:     displayName,
		LinkKey:         key,
		ParentAccountID: acct.ID,
		AddedDate:       time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
	}
	if similar := similarKeys(s.dependents, key); len(similar) > 0 {
		log.Printf("identity: link key %s is close to %d existing key(s)", key, len(similar))
	}

	deps := append(cloneDependents(s.dependents), dep)
	acct.DependentCount++
	if err := s.commitGuardianLocked(ctx, acct, deps); err != nil {
		return Account{}, fmt.Errorf("link dependent: %w", err)
	}
	log.Printf("identity: linked dependent %s to %s (%d/%d)", dep.ID, acct.ID, acct.DependentCount, acct.DependentLimit)
	return acct, nil
}

// UnlinkDependent removes one of the account's dependents.
func (s *Session) UnlinkDependent(ctx context.Context, dependentID string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.guardianLocked()
	if err != nil {
		return Account{}, err
	}
	idx := -1
	for i, d := range s.dependents {
		if d.ID == dependentID && d.ParentAccountID == acct.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Account{}, fmt.Errorf("%w: %s", ErrNotFound, dependentID)
	}

	deps := make([]Dependent, 0, len(s.dependents)-1)
	deps = append(deps, s.dependents[:idx]...)
	deps = append(deps, s.dependents[idx+1:]...)
	if acct.DependentCount > 0 {
		acct.DependentCount--
	}
	if err := s.commitGuardianLocked(ctx, acct, deps); err != nil {
		return Account{}, fmt.Errorf("unlink dependent: %w", err)
	}
	log.Printf("identity: unlinked dependent %s from %s", dependentID, acct.ID)
	return acct, nil
}

// ActivateEntitlement grants the premium window when code matches. Activating again restarts
// the window from now.
func (s *Session) ActivateEntitlement(ctx context.Context, code string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.guardianLocked()
	if err != nil {
		return Account{}, err
	}
	if strings.TrimSpace(code) != s.activationCode {
		return Account{}, ErrInvalidCode
	}

	expires := s.now().Add(EntitlementPeriod)
	acct.Entitlement.Active = true
	acct.Entitlement.ExpiresAt = &expires
	acct.DependentLimit = EntitledDependentLimit

	encoded, err := encodeAccount(acct)
	if err != nil {
		return Account{}, err
	}
	if err := s.store.Apply(ctx, store.NewBatch().Set(KeyAccount, encoded)); err != nil {
		return Account{}, fmt.Errorf("activate entitlement: %w", err)
	}
	s.account = &acct
	log.Printf("identity: entitlement active for %s until %s", acct.ID, expires.Format(time.RFC3339))
	return acct, nil
}

func (s *Session) CanAddMoreDependents() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account != nil && s.account.IsGuardian() && s.account.CanAddMoreDependents()
}

func (s *Session) NeedsUpgradeForMoreDependents() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account != nil && s.account.IsGuardian() && s.account.NeedsUpgradeForMoreDependents()
}

// SimilarLinkKeys lists linked dependents whose key equals key or is one edit away from it.
func (s *Session) SimilarLinkKeys(key string) []Dependent {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return similarKeys(s.dependents, key)
}

// SetupDependentDevice creates the local identity of a dependent device that shows key to its
// guardian.
func (s *Session) SetupDependentDevice(ctx context.Context, key string) (Account, error) {
	key, err := NormalizeLinkKey(key)
	if err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct := Account{
		ID:             uuid.NewString(),
		Name:           "Child-" + key,
		Role:           RoleDependent,
		CreatedAt:      s.now(),
		Entitlement:    Entitlement{TrialDays: DefaultTrialDays},
		DependentLimit: FreeDependentLimit,
	}
	encoded, err := encodeAccount(acct)
	if err != nil {
		return Account{}, err
	}
	batch := store.NewBatch().
		Set(KeyAccount, encoded).
		Delete(KeyDependents).
		Set(KeyCachedLink, key)
	if err := s.store.Apply(ctx, batch); err != nil {
		return Account{}, fmt.Errorf("setup dependent device: %w", err)
	}
	s.account = &acct
	s.dependents = nil
	s.cachedKey = key
	log.Printf("identity: dependent device %s set up", acct.ID)
	return acct, nil
}

// DiscardDeviceIdentity removes a dependent identity that was set up but never finished
// onboarding. The cached link key is kept so the device shows the same key again.
func (s *Session) DiscardDeviceIdentity(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil || s.account.Role != RoleDependent {
		return nil
	}
	batch := store.NewBatch().
		Delete(KeyAccount).
		Delete(KeyDependents)
	if err := s.store.Apply(ctx, batch); err != nil {
		return fmt.Errorf("discard device identity: %w", err)
	}
	log.Printf("identity: dependent device %s discarded", s.account.ID)
	s.account = nil
	s.dependents = nil
	return nil
}

// CanUse reports whether the current account may use capability k.
func (s *Session) CanUse(k capability.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return ErrNoSession
	}
	return s.account.CanUse(k)
}

// CacheLinkKey keeps a generated device key across restarts until it is confirmed.
func (s *Session) CacheLinkKey(ctx context.Context, key string) error {
	key, err := NormalizeLinkKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := store.Set(ctx, s.store, KeyCachedLink, key); err != nil {
		return fmt.Errorf("cache link key: %w", err)
	}
	s.cachedKey = key
	return nil
}

// EndSession signs out: account, dependents and cached key are removed from memory and store.
func (s *Session) EndSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Apply(ctx, clearBatch()); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if s.account != nil {
		log.Printf("identity: session %s ended", s.account.ID)
	}
	s.account = nil
	s.dependents = nil
	s.cachedKey = ""
	return nil
}

// RestoreSession loads the persisted session, if any. It never fails: unreadable records are
// discarded and reported as no session. Older records are normalized and written back.
func (s *Session) RestoreSession(ctx context.Context) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.account = nil
	s.dependents = nil
	s.cachedKey = ""

	cached, ok, err := s.store.Get(ctx, KeyCachedLink)
	if err != nil {
		log.Printf("identity: restore cached key: %v", err)
	} else if ok {
		s.cachedKey = cached
	}

	raw, ok, err := s.store.Get(ctx, KeyAccount)
	if err != nil {
		log.Printf("identity: restore account: %v", err)
		return Account{}, false
	}
	if !ok {
		return Account{}, false
	}
	acct, stale, err := decodeAccount(raw, s.now())
	if err != nil {
		s.discardLocked(ctx, err)
		return Account{}, false
	}

	var deps []Dependent
	if acct.IsGuardian() {
		rawDeps, ok, err := s.store.Get(ctx, KeyDependents)
		if err != nil {
			log.Printf("identity: restore dependents: %v", err)
			return Account{}, false
		}
		if ok {
			all, err := decodeDependents(rawDeps)
			if err != nil {
				s.discardLocked(ctx, err)
				return Account{}, false
			}
			for _, d := range all {
				if d.ParentAccountID != acct.ID {
					log.Printf("identity: dropping dependent %s owned by %q", d.ID, d.ParentAccountID)
					stale = true
					continue
				}
				deps = append(deps, d)
			}
		}
		if acct.DependentCount != len(deps) {
			log.Printf("identity: warning: account %s stored %d dependents but owns %d", acct.ID, acct.DependentCount, len(deps))
			acct.DependentCount = len(deps)
			stale = true
		}
		if acct.DependentCount > acct.DependentLimit {
			log.Printf("identity: warning: account %s owns %d dependents over its limit of %d, linking is blocked until the entitlement is active", acct.ID, acct.DependentCount, acct.DependentLimit)
		}
	}

	if stale {
		if err := s.rewriteLocked(ctx, acct, deps); err != nil {
			log.Printf("identity: rewrite normalized session: %v", err)
		}
	}
	s.account = &acct
	s.dependents = deps
	log.Printf("identity: restored %s session %s", acct.Role, acct.ID)
	return acct, true
}

// Account returns a copy of the current account.
func (s *Session) Account() (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return Account{}, false
	}
	return *s.account, true
}

func (s *Session) Dependents() []Dependent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneDependents(s.dependents)
}

func (s *Session) CachedLinkKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cachedKey
}

// Now is the session's clock.
func (s *Session) Now() time.Time { return s.now() }

func (s *Session) guardianLocked() (Account, error) {
	if s.account == nil {
		return Account{}, ErrNoSession
	}
	if !s.account.IsGuardian() {
		return Account{}, ErrNotGuardian
	}
	return *s.account, nil
}

func (s *Session) commitGuardianLocked(ctx context.Context, acct Account, deps []Dependent) error {
	encAcct, err := encodeAccount(acct)
	if err != nil {
		return err
	}
	encDeps, err := encodeDependents(deps)
	if err != nil {
		return err
	}
	batch := store.NewBatch().
		Set(KeyDependents, encDeps).
		Set(KeyAccount, encAcct)
	if err := s.store.Apply(ctx, batch); err != nil {
		return err
	}
	s.account = &acct
	s.dependents = deps
	return nil
}

func (s *Session) rewriteLocked(ctx context.Context, acct Account, deps []Dependent) error {
	encAcct, err := encodeAccount(acct)
	if err != nil {
		return err
	}
	batch := store.NewBatch().Set(KeyAccount, encAcct)
	if acct.IsGuardian() {
		encDeps, err := encodeDependents(deps)
		if err != nil {
			return err
		}
		batch.Set(KeyDependents, encDeps)
	}
	return s.store.Apply(ctx, batch)
}

func (s *Session) discardLocked(ctx context.Context, cause error) {
	if !errors.Is(cause, ErrStorageCorrupt) {
		cause = fmt.Errorf("%w: %v", ErrStorageCorrupt, cause)
	}
	log.Printf("identity: discarding stored session: %v", cause)
	if err := s.store.Apply(ctx, clearBatch()); err != nil {
		log.Printf("identity: discard stored session: %v", err)
	}
	s.cachedKey = ""
}

func clearBatch() *store.Batch {
	return store.NewBatch().
		Delete(KeyAccount).
		Delete(KeyDependents).
		Delete(KeyCachedLink)
}

func cloneDependents(deps []Dependent) []Dependent {
	if deps == nil {
		return nil
	}
	out := make([]Dependent, len(deps))
	copy(out, deps)
	return out
}
