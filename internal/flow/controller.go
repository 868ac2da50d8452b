// Package flow drives onboarding from role selection to a dashboard. A Controller is owned by
// the presentation layer and is not safe for concurrent use.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/olimtoy/olimtoy/internal/capability"
	"github.com/olimtoy/olimtoy/internal/identity"
	"github.com/olimtoy/olimtoy/internal/sms"
)

var (
	ErrInvalidTransition = errors.New("not available on this screen")
	ErrResendTooEarly    = errors.New("code can not be resent yet")
)

const (
	DefaultVerificationCode  = "123456"
	DefaultResendCountdown   = 60 * time.Second
	DefaultDeviceAutoAdvance = 8 * time.Second
	codeDigits               = 6
)

// Config holds the onboarding timings and secrets.
type Config struct {
	VerificationCode  string
	ResendCountdown   time.Duration
	DeviceAutoAdvance time.Duration
}

func DefaultConfig() Config {
	return Config{
		VerificationCode:  DefaultVerificationCode,
		ResendCountdown:   DefaultResendCountdown,
		DeviceAutoAdvance: DefaultDeviceAutoAdvance,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.VerificationCode == "" {
		c.VerificationCode = d.VerificationCode
	}
	if c.ResendCountdown <= 0 {
		c.ResendCountdown = d.ResendCountdown
	}
	if c.DeviceAutoAdvance <= 0 {
		c.DeviceAutoAdvance = d.DeviceAutoAdvance
	}
	return c
}

// Profile is the guardian form as last submitted.
type Profile struct {
	Name          string
	ContactNumber string
}

// Link is the dependent the guardian asked to link during onboarding.
type Link struct {
	Key         string
	DisplayName string
}

// PermissionState is one row of the permission screen.
type PermissionState struct {
	Kind    capability.Kind
	Outcome capability.Outcome
}

type Controller struct {
	session *identity.Session
	sender  sms.Sender
	cfg     Config
	now     func() time.Time

	screen  Screen
	history []Screen
	role    identity.Role

	profile    Profile
	codeInput  string
	codeSentAt time.Time
	link       Link
	deviceKey  string
	keyShownAt time.Time
	perms      *capability.Set
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController starts on the dashboard of a restored session, otherwise on role selection.
func NewController(session *identity.Session, sender sms.Sender, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		session: session,
		sender:  sender,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		screen:  RoleSelect,
	}
	for _, opt := range opts {
		opt(c)
	}
	if acct, ok := session.Account(); ok {
		c.role = acct.Role
		c.screen = dashboardFor(acct.Role)
		c.deviceKey = session.CachedLinkKey()
	}
	return c
}

func (c *Controller) Screen() Screen { return c.screen }
func (c *Controller) Role() identity.Role { return c.role }
func (c *Controller) Session() *identity.Session { return c.session }
func (c *Controller) Profile() Profile { return c.profile }
func (c *Controller) Link() Link { return c.link }
func (c *Controller) DeviceKey() string { return c.deviceKey }
func (c *Controller) CodeInput() string { return c.codeInput }

// SelectRole leaves RoleSelect for the first screen of the chosen path. Choosing the dependent
// path generates the device key, or reuses the cached one.
func (c *Controller) SelectRole(ctx context.Context, role identity.Role) error {
	if c.screen != RoleSelect {
		return c.invalid("select role")
	}
	switch role {
	case identity.RoleGuardian:
		c.role = role
		c.push(GuardianProfile)
		return nil
	case identity.RoleDependent:
		key := c.session.CachedLinkKey()
		if key == "" {
			var err error
			if key, err = identity.GenerateLinkKey(); err != nil {
				return fmt.Errorf("generate link key: %w", err)
			}
		}
		if err := c.session.CacheLinkKey(ctx, key); err != nil {
			return err
		}
		c.role = role
		c.deviceKey = key
		c.keyShownAt = c.now()
		c.push(DependentDeviceSetup)
		return nil
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidTransition, role)
	}
}

// SubmitProfile validates the guardian form and sends the verification code.
func (c *Controller) SubmitProfile(ctx context.Context, name, contactNumber string) error {
	if c.screen != GuardianProfile {
		return c.invalid("submit profile")
	}
	name, contact, err := identity.ValidateProfile(name, contactNumber)
	if err != nil {
		return err
	}
	c.profile = Profile{Name: name, ContactNumber: contact}
	c.codeInput = ""
	c.push(Verification)
	c.sendCode(ctx, false)
	return nil
}

// SubmitCode checks a verification attempt. A wrong code clears the input and keeps the screen.
func (c *Controller) SubmitCode(code string) error {
	if c.screen != Verification {
		return c.invalid("submit code")
	}
	if !isDigits(code, codeDigits) {
		return &identity.ValidationError{Field: "verificationCode", Message: fmt.Sprintf("enter the %d-digit code", codeDigits)}
	}
	if code != c.cfg.VerificationCode {
		c.codeInput = ""
		return identity.ErrInvalidCode
	}
	c.codeInput = code
	c.push(DependentLinkSetup)
	return nil
}

// ResendIn is how long until Resend is allowed; zero when it already is.
func (c *Controller) ResendIn(now time.Time) time.Duration {
	if c.screen != Verification {
		return 0
	}
	left := c.codeSentAt.Add(c.cfg.ResendCountdown).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

func (c *Controller) Resend(ctx context.Context) error {
	if c.screen != Verification {
		return c.invalid("resend code")
	}
	if c.ResendIn(c.now()) > 0 {
		return ErrResendTooEarly
	}
	c.sendCode(ctx, true)
	return nil
}

// SubmitLink records the dependent to link once the account exists.
func (c *Controller) SubmitLink(key, displayName string) error {
	if c.screen != DependentLinkSetup {
		return c.invalid("submit link")
	}
	key, err := identity.NormalizeLinkKey(key)
	if err != nil {
		return err
	}
	c.link = Link{Key: key, DisplayName: displayName}
	c.enterPermissions()
	return nil
}

// ConfirmDeviceKey creates the dependent identity and moves on to permissions.
func (c *Controller) ConfirmDeviceKey(ctx context.Context) error {
	if c.screen != DependentDeviceSetup {
		return c.invalid("confirm device key")
	}
	if _, err := c.session.SetupDependentDevice(ctx, c.deviceKey); err != nil {
		return err
	}
	c.enterPermissions()
	return nil
}

// Tick advances timed transitions. It reports whether the screen changed.
func (c *Controller) Tick(ctx context.Context, now time.Time) (bool, error) {
	if c.screen != DependentDeviceSetup {
		return false, nil
	}
	if now.Sub(c.keyShownAt) < c.cfg.DeviceAutoAdvance {
		return false, nil
	}
	if err := c.ConfirmDeviceKey(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// DeviceKeyRemaining is the time left before the device key screen advances on its own.
func (c *Controller) DeviceKeyRemaining(now time.Time) time.Duration {
	if c.screen != DependentDeviceSetup {
		return 0
	}
	left := c.keyShownAt.Add(c.cfg.DeviceAutoAdvance).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

func (c *Controller) Permissions() []PermissionState {
	if c.perms == nil {
		return nil
	}
	kinds := c.perms.Kinds()
	out := make([]PermissionState, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, PermissionState{Kind: k, Outcome: c.perms.Outcome(k)})
	}
	return out
}

// Resolve records a permission answer. The last answer finishes onboarding: a guardian account
// is registered and the pending link is made. A failed link still lands on the dashboard and
// is returned so it can be shown there.
func (c *Controller) Resolve(ctx context.Context, kind capability.Kind, outcome capability.Outcome) error {
	if c.screen != PermissionGrant {
		return c.invalid("resolve permission")
	}
	if err := c.perms.Resolve(kind, outcome); err != nil {
		return err
	}
	if !c.perms.AllResolved() {
		return nil
	}
	return c.finish(ctx)
}

// PendingPermissions lists the kinds that still need an answer.
func (c *Controller) PendingPermissions() []capability.Kind {
	if c.perms == nil {
		return nil
	}
	return c.perms.Pending()
}

func (c *Controller) RetryPermission(kind capability.Kind) error {
	if c.screen != PermissionGrant {
		return c.invalid("retry permission")
	}
	return c.perms.Retry(kind)
}

// Back returns to the previous screen and drops what was entered on the screen being left.
// A dependent identity created on leaving device setup is removed again, so it can only be
// restored after the permission gate. The device key stays cached.
func (c *Controller) Back(ctx context.Context) error {
	if len(c.history) == 0 || isDashboard(c.screen) {
		return c.invalid("back")
	}
	if c.role == identity.RoleDependent && (c.screen == PermissionGrant || c.screen == DependentDeviceSetup) {
		if err := c.session.DiscardDeviceIdentity(ctx); err != nil {
			return err
		}
	}
	switch c.screen {
	case GuardianProfile, DependentDeviceSetup:
		c.role = ""
		c.profile = Profile{}
	case Verification:
		c.codeInput = ""
		c.codeSentAt = time.Time{}
	case DependentLinkSetup:
		c.link = Link{}
	case PermissionGrant:
		c.perms = nil
	}
	c.screen = c.history[len(c.history)-1]
	c.history = c.history[:len(c.history)-1]
	if c.screen == DependentDeviceSetup {
		c.keyShownAt = c.now()
	}
	return nil
}

// Reset returns to RoleSelect and clears every draft. Anything onboarding already persisted,
// including the cached device key, is removed with the session.
func (c *Controller) Reset(ctx context.Context) error {
	_, hasAccount := c.session.Account()
	if hasAccount || c.session.CachedLinkKey() != "" {
		if err := c.session.EndSession(ctx); err != nil {
			return err
		}
	}
	c.screen = RoleSelect
	c.history = nil
	c.role = ""
	c.profile = Profile{}
	c.codeInput = ""
	c.codeSentAt = time.Time{}
	c.link = Link{}
	c.deviceKey = ""
	c.keyShownAt = time.Time{}
	c.perms = nil
	return nil
}

// SignOut ends the session from a dashboard.
func (c *Controller) SignOut(ctx context.Context) error {
	if !isDashboard(c.screen) {
		return c.invalid("sign out")
	}
	return c.Reset(ctx)
}

func (c *Controller) finish(ctx context.Context) error {
	switch c.role {
	case identity.RoleGuardian:
		if _, err := c.session.RegisterGuardian(ctx, c.profile.Name, c.profile.ContactNumber); err != nil {
			return err
		}
		c.land(GuardianDashboard)
		if c.link.Key == "" {
			return nil
		}
		if _, err := c.session.LinkDependent(ctx, c.link.Key, c.link.DisplayName); err != nil {
			log.Printf("flow: link %s after registration: %v", c.link.Key, err)
			return fmt.Errorf("link dependent: %w", err)
		}
		return nil
	case identity.RoleDependent:
		if _, ok := c.session.Account(); !ok {
			return identity.ErrNoSession
		}
		c.land(DependentDashboard)
		return nil
	}
	return c.invalid("finish onboarding")
}

func (c *Controller) land(s Screen) {
	c.screen = s
	c.history = nil
	c.perms = nil
	c.codeInput = ""
	log.Printf("flow: onboarding finished on %s", s)
}

func (c *Controller) enterPermissions() {
	c.perms = capability.NewSet(RequiredPermissions(c.role)...)
	c.push(PermissionGrant)
}

func (c *Controller) push(next Screen) {
	c.history = append(c.history, c.screen)
	c.screen = next
}

func (c *Controller) sendCode(ctx context.Context, resend bool) {
	c.codeSentAt = c.now()
	req := sms.CodeRequest{ContactNumber: c.profile.ContactNumber, Code: c.cfg.VerificationCode, Resend: resend}
	if err := c.sender.SendCode(ctx, req); err != nil {
		log.Printf("flow: send verification code: %v", err)
	}
}

func (c *Controller) invalid(action string) error {
	return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, action, c.screen)
}

// RequiredPermissions lists the capabilities a role must answer before its dashboard.
func RequiredPermissions(role identity.Role) []capability.Kind {
	if role == identity.RoleDependent {
		return capability.All()
	}
	return []capability.Kind{capability.Camera, capability.Location, capability.Microphone, capability.Device}
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
