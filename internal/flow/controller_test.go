package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olimtoy/olimtoy/internal/capability"
	"github.com/olimtoy/olimtoy/internal/identity"
	"github.com/olimtoy/olimtoy/internal/sms"
	"github.com/olimtoy/olimtoy/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	ctl     *Controller
	session *identity.Session
	mem     *store.Memory
	sender  *sms.LogSender
	clock   *clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	mem := store.NewMemory()
	session := identity.NewSession(mem, identity.WithClock(clk.Now))
	sender := sms.NewLogSender()
	return &harness{
		ctl:     NewController(session, sender, DefaultConfig(), WithClock(clk.Now)),
		session: session,
		mem:     mem,
		sender:  sender,
		clock:   clk,
	}
}

func resolveAll(t *testing.T, ctl *Controller, outcome capability.Outcome) error {
	t.Helper()
	var last error
	for _, p := range ctl.Permissions() {
		last = ctl.Resolve(context.Background(), p.Kind, outcome)
	}
	return last
}

func TestGuardianOnboarding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	ctl := h.ctl

	require.Equal(t, RoleSelect, ctl.Screen())
	require.NoError(t, ctl.SelectRole(ctx, identity.RoleGuardian))
	require.Equal(t, GuardianProfile, ctl.Screen())

	err := ctl.SubmitProfile(ctx, "Aziza", "+998991234567")
	var verr *identity.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, GuardianProfile, ctl.Screen())

	require.NoError(t, ctl.SubmitProfile(ctx, " Aziza ", "+998 90 123 45 67"))
	require.Equal(t, Verification, ctl.Screen())
	require.Len(t, h.sender.Sent(), 1)
	require.Equal(t, "+998901234567", h.sender.Sent()[0].ContactNumber)

	require.NoError(t, ctl.SubmitCode("123456"))
	require.Equal(t, DependentLinkSetup, ctl.Screen())

	require.NoError(t, ctl.SubmitLink("ab12cd", "Madina"))
	require.Equal(t, PermissionGrant, ctl.Screen())
	require.Len(t, ctl.Permissions(), 4)

	_, ok := h.session.Account()
	require.False(t, ok, "account is created only after permissions")

	require.NoError(t, ctl.Resolve(ctx, capability.Camera, capability.Granted))
	require.NoError(t, ctl.Resolve(ctx, capability.Location, capability.Denied))
	require.NoError(t, ctl.Resolve(ctx, capability.Microphone, capability.Granted))
	require.Equal(t, PermissionGrant, ctl.Screen())
	require.NoError(t, ctl.Resolve(ctx, capability.Device, capability.Denied))
	require.Equal(t, GuardianDashboard, ctl.Screen())

	acct, ok := h.session.Account()
	require.True(t, ok)
	require.Equal(t, "Aziza", acct.Name)
	require.Equal(t, 1, acct.DependentCount)
	deps := h.session.Dependents()
	require.Len(t, deps, 1)
	require.Equal(t, "AB12CD", deps[0].LinkKey)
	require.Equal(t, "Madina", deps[0].DisplayName)
}

func TestVerificationWrongCodeStays(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	ctl := h.ctl

	require.NoError(t, ctl.SelectRole(ctx, identity.RoleGuardian))
	require.NoError(t, ctl.SubmitProfile(ctx, "Aziza", "+998901234567"))

	for _, code := range []string{"000000", "654321", "123457"} {
		require.ErrorIs(t, ctl.SubmitCode(code), identity.ErrInvalidCode)
		require.Equal(t, Verification, ctl.Screen())
		require.Empty(t, ctl.CodeInput())
	}

	for _, code := range []string{"12345", "12345a", ""} {
		var verr *identity.ValidationError
		require.True(t, errors.As(ctl.SubmitCode(code), &verr), code)
	}

	require.NoError(t, ctl.SubmitCode("123456"))
	require.Equal(t, DependentLinkSetup, ctl.Screen())
}

func TestResendCountdown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	ctl := h.ctl

	require.NoError(t, ctl.SelectRole(ctx, identity.RoleGuardian))
	require.NoError(t, ctl.SubmitProfile(ctx, "Aziza", "+998901234567"))
	require.Equal(t, 60*time.Second, ctl.ResendIn(h.clock.Now()))

	h.clock.Advance(59 * time.Second)
	require.ErrorIs(t, ctl.Resend(ctx), ErrResendTooEarly)
	require.Equal(t, time.Second, ctl.ResendIn(h.clock.Now()))

	h.clock.Advance(time.Second)
	require.NoError(t, ctl.Resend(ctx))
	sent := h.sender.Sent()
	require.Len(t, sent, 2)
	require.True(t, sent[1].Resend)
	require.ErrorIs(t, ctl.Resend(ctx), ErrResendTooEarly)
}

func TestDependentOnboardingAutoAdvance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	ctl := h.ctl

	require.NoError(t, ctl.SelectRole(ctx, identity.RoleDependent))
	require.Equal(t, DependentDeviceSetup, ctl.Screen())
	key := ctl.DeviceKey()
	require.Len(t, key, identity.LinkKeyLength)
	require.Equal(t, key, h.session.CachedLinkKey())

	h.clock.Advance(7 * time.Second)
	changed, err := ctl.Tick(ctx, h.clock.Now())
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, time.Second, ctl.DeviceKeyRemaining(h.clock.Now()))

	h.clock.Advance(time.Second)
	changed, err = ctl.Tick(ctx, h.clock.Now())
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, PermissionGrant, ctl.Screen())
	require.Len(t, ctl.Permissions(), 5)

	acct, ok := h.session.Account()
	require.True(t, ok)
	require.Equal(t, identity.RoleDependent, acct.Role)
	require.Equal(t, "Child-"+key, acct.Name)

	require.NoError(t, resolveAll(t, ctl, capability.Denied))
	require.Equal(t, DependentDashboard, ctl.Screen())
}

func TestDependentConfirmImmediately(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.ctl.SelectRole(ctx, identity.RoleDependent))
	require.NoError(t, h.ctl.ConfirmDeviceKey(ctx))
	require.Equal(t, PermissionGrant, h.ctl.Screen())
}

func TestPermissionRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	ctl := h.ctl

	require.NoError(t, ctl.SelectRole(ctx, identity.RoleDependent))
	require.NoError(t, ctl.ConfirmDeviceKey(ctx))

	for _, k := range []capability.Kind{capability.Camera, capability.Location, capability.Microphone, capability.Battery} {
		require.NoError(t, ctl.Resolve(ctx, k, capability.Denied))
	}
	require.NoError(t, ctl.RetryPermission(capability.Camera))
	require.Equal(t, []capability.Kind{capability.Camera, capability.Device}, ctl.PendingPermissions())
	require.NoError(t, ctl.Resolve(ctx, capability.Device, capability.Granted))
	require.Equal(t, PermissionGrant, ctl.Screen())
	require.Equal(t, []capability.Kind{capability.Camera}, ctl.PendingPermissions())

	require.NoError(t, ctl.Resolve(ctx, capability.Camera, capability.Granted))
	require.Equal(t, DependentDashboard, ctl.Screen())
	require.Nil(t, ctl.PendingPermissions())
}

func TestBackDiscardsLeavingScreen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	ctl := h.ctl

	require.ErrorIs(t, ctl.Back(ctx), ErrInvalidTransition)

	require.NoError(t, ctl.SelectRole(ctx, identity.RoleGuardian))
	require.NoError(t, ctl.SubmitProfile(ctx, "Aziza", "+998901234567"))
	require.NoError(t, ctl.SubmitCode("123456"))
	require.NoError(t, ctl.SubmitLink("AB12CD", ""))

	require.NoError(t, ctl.Back(ctx))
	require.Equal(t, DependentLinkSetup, ctl.Screen())
	require.Nil(t, ctl.Permissions())
	require.Equal(t, "AB12CD", ctl.Link().Key)

	require.NoError(t, ctl.Back(ctx))
	require.Equal(t, Verification, ctl.Screen())
	require.Empty(t, ctl.Link().Key)

	require.NoError(t, ctl.Back(ctx))
	require.Equal(t, GuardianProfile, ctl.Screen())
	require.Equal(t, "Aziza", ctl.Profile().Name)

	require.NoError(t, ctl.Back(ctx))
	require.Equal(t, RoleSelect, ctl.Screen())
	require.Empty(t, ctl.Profile().Name)
	require.Empty(t, string(ctl.Role()))
}

func TestBackKeepsDeviceKeyUntilReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	ctl := h.ctl

	require.NoError(t, ctl.SelectRole(ctx, identity.RoleDependent))
	key := ctl.DeviceKey()
	require.NoError(t, ctl.Back(ctx))
	require.Equal(t, RoleSelect, ctl.Screen())

	require.NoError(t, ctl.SelectRole(ctx, identity.RoleDependent))
	require.Equal(t, key, ctl.DeviceKey())

	require.NoError(t, ctl.Reset(ctx))
	require.Equal(t, RoleSelect, ctl.Screen())
	require.Empty(t, ctl.DeviceKey())
	require.Empty(t, h.session.CachedLinkKey())
	require.Equal(t, 0, h.mem.Len())
}

func TestBackingOutOfDeviceSetupForgetsIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	ctl := h.ctl

	require.NoError(t, ctl.SelectRole(ctx, identity.RoleDependent))
	key := ctl.DeviceKey()
	require.NoError(t, ctl.ConfirmDeviceKey(ctx))
	_, ok := h.session.Account()
	require.True(t, ok)

	require.NoError(t, ctl.Back(ctx))
	require.Equal(t, DependentDeviceSetup, ctl.Screen())
	_, ok = h.session.Account()
	require.False(t, ok)
	require.Equal(t, key, h.session.CachedLinkKey())

	require.NoError(t, ctl.Back(ctx))
	require.Equal(t, RoleSelect, ctl.Screen())

	restarted := identity.NewSession(h.mem)
	_, ok = restarted.RestoreSession(ctx)
	require.False(t, ok)
	require.Equal(t, key, restarted.CachedLinkKey())
	require.Equal(t, RoleSelect, NewController(restarted, h.sender, DefaultConfig()).Screen())

	// a guardian started after backing out does not inherit the device identity
	require.NoError(t, ctl.SelectRole(ctx, identity.RoleGuardian))
	_, ok = h.session.Account()
	require.False(t, ok)
}

func TestBackKeepsScreenWhenDiscardFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := &failingStore{Store: store.NewMemory()}
	session := identity.NewSession(st)
	ctl := NewController(session, sms.NewLogSender(), DefaultConfig())

	require.NoError(t, ctl.SelectRole(ctx, identity.RoleDependent))
	require.NoError(t, ctl.ConfirmDeviceKey(ctx))
	st.failFrom = st.applies + 1

	require.Error(t, ctl.Back(ctx))
	require.Equal(t, PermissionGrant, ctl.Screen())
	_, ok := session.Account()
	require.True(t, ok)
}

func TestInvalidTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	ctl := h.ctl

	require.ErrorIs(t, ctl.SubmitProfile(ctx, "Aziza", "+998901234567"), ErrInvalidTransition)
	require.ErrorIs(t, ctl.SubmitCode("123456"), ErrInvalidTransition)
	require.ErrorIs(t, ctl.SubmitLink("AB12CD", ""), ErrInvalidTransition)
	require.ErrorIs(t, ctl.ConfirmDeviceKey(ctx), ErrInvalidTransition)
	require.ErrorIs(t, ctl.Resolve(ctx, capability.Camera, capability.Granted), ErrInvalidTransition)
	require.ErrorIs(t, ctl.SignOut(ctx), ErrInvalidTransition)
	require.ErrorIs(t, ctl.SelectRole(ctx, identity.Role("admin")), ErrInvalidTransition)
	require.Equal(t, RoleSelect, ctl.Screen())
}

// failingStore starts rejecting writes once applies reaches failFrom.
type failingStore struct {
	store.Store
	applies  int
	failFrom int
}

func (f *failingStore) Apply(ctx context.Context, b *store.Batch) error {
	f.applies++
	if f.failFrom > 0 && f.applies >= f.failFrom {
		return errors.New("write rejected")
	}
	return f.Store.Apply(ctx, b)
}

func TestLinkFailureStillLandsOnDashboard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := &failingStore{Store: store.NewMemory()}
	session := identity.NewSession(st)
	ctl := NewController(session, sms.NewLogSender(), DefaultConfig())

	require.NoError(t, ctl.SelectRole(ctx, identity.RoleGuardian))
	require.NoError(t, ctl.SubmitProfile(ctx, "Aziza", "+998901234567"))
	require.NoError(t, ctl.SubmitCode("123456"))
	require.NoError(t, ctl.SubmitLink("AB12CD", ""))

	// registration is the next write, linking the one after
	st.failFrom = st.applies + 2
	err := resolveAll(t, ctl, capability.Granted)
	require.Error(t, err)
	require.Equal(t, GuardianDashboard, ctl.Screen())

	acct, ok := session.Account()
	require.True(t, ok)
	require.Equal(t, "Aziza", acct.Name)
	require.Equal(t, 0, acct.DependentCount)
	require.Empty(t, session.Dependents())
}

func TestSignOutAndRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.session.RegisterGuardian(ctx, "Aziza", "+998901234567")
	require.NoError(t, err)
	_, err = h.session.LinkDependent(ctx, "AB12CD", "")
	require.NoError(t, err)

	ctl := NewController(h.session, h.sender, Config{})
	require.Equal(t, GuardianDashboard, ctl.Screen())
	require.ErrorIs(t, ctl.Back(ctx), ErrInvalidTransition)

	require.NoError(t, ctl.SignOut(ctx))
	require.Equal(t, RoleSelect, ctl.Screen())
	require.Equal(t, 0, h.mem.Len())

	_, ok := identity.NewSession(h.mem).RestoreSession(ctx)
	require.False(t, ok)
}

func TestRestoredDependentStartsOnDashboard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.session.SetupDependentDevice(ctx, "QW12ER")
	require.NoError(t, err)

	restored := identity.NewSession(h.mem)
	_, ok := restored.RestoreSession(ctx)
	require.True(t, ok)
	ctl := NewController(restored, h.sender, DefaultConfig())
	require.Equal(t, DependentDashboard, ctl.Screen())
	require.Equal(t, "QW12ER", ctl.DeviceKey())
}
