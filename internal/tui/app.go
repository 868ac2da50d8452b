package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/olimtoy/olimtoy/internal/capability"
	"github.com/olimtoy/olimtoy/internal/config"
	"github.com/olimtoy/olimtoy/internal/flow"
	"github.com/olimtoy/olimtoy/internal/identity"
	"github.com/olimtoy/olimtoy/internal/service"
	"github.com/olimtoy/olimtoy/internal/sms"
)

// App renders the onboarding flow and the dashboards it ends on.
type App struct {
	ctx         context.Context
	ctl         *flow.Controller
	session     *identity.Session
	acquirers   map[capability.Kind]capability.Acquirer
	maintenance *service.MaintenanceService
	support     sms.SupportSender
	cfg         config.Config
	tz          *time.Location
	now         func() time.Time

	screen  flow.Screen
	view    dashView
	modal   modalState
	form    form
	cursor  int
	width   int
	status  string
	pending string // id of the dependent awaiting unlink confirmation
	stats   *service.Stats
}

// Deps bundles what the App drives.
type Deps struct {
	Controller  *flow.Controller
	Acquirers   map[capability.Kind]capability.Acquirer
	Maintenance *service.MaintenanceService
	Support     sms.SupportSender
}

type dashView string

const (
	viewOverview dashView = "overview"
	viewSettings dashView = "settings"
)

type modalState string

const (
	modalNone           modalState = ""
	modalLink           modalState = "link"
	modalUpgrade        modalState = "upgrade"
	modalConfirmUnlink  modalState = "confirmUnlink"
	modalConfirmSignOut modalState = "confirmSignOut"
	modalConfirmWipe    modalState = "confirmWipe"
	modalSupport        modalState = "support"
)

// dateFormats and timezones are the choices the settings view cycles through.
var (
	dateFormats = []string{"2006-01-02", "02.01.2006", "Jan 2, 2006"}
	timezones   = []string{"Asia/Tashkent", "UTC", "Local"}
)

type (
	statusMsg string
	errMsg    struct{ error }
	tickMsg   time.Time
	statsMsg  service.Stats
)

func New(ctx context.Context, cfg config.Config, deps Deps, tz *time.Location) *App {
	if tz == nil {
		tz = time.Local
	}
	a := &App{
		ctx:         ctx,
		ctl:         deps.Controller,
		session:     deps.Controller.Session(),
		acquirers:   deps.Acquirers,
		maintenance: deps.Maintenance,
		support:     deps.Support,
		cfg:         cfg,
		tz:          tz,
		now:         time.Now,
		view:        viewOverview,
		width:       80,
	}
	a.enter()
	return a
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.form.focusCmd(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = m.Width
		return a, nil
	case tickMsg:
		changed, err := a.ctl.Tick(a.ctx, time.Time(m))
		if err != nil {
			a.status = "error: " + err.Error()
		}
		if changed {
			a.enter()
		}
		return a, tick()
	case statusMsg:
		a.status = string(m)
		return a, nil
	case statsMsg:
		st := service.Stats(m)
		a.stats = &st
		return a, nil
	case errMsg:
		if errors.Is(m.error, identity.ErrCapacityExceeded) {
			a.openUpgrade("Dependent limit reached. Enter an activation code to link more.")
			return a, a.form.focusCmd()
		}
		a.status = describe(m.error)
		return a, nil
	case tea.KeyMsg:
		if m.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.modal != modalNone {
			return a.handleModalKey(m)
		}
		switch a.screen {
		case flow.RoleSelect:
			return a.handleRoleKey(m)
		case flow.GuardianProfile, flow.Verification, flow.DependentLinkSetup:
			return a.handleFormKey(m)
		case flow.DependentDeviceSetup:
			return a.handleDeviceKey(m)
		case flow.PermissionGrant:
			return a.handlePermissionKey(m)
		case flow.GuardianDashboard:
			return a.handleGuardianKey(m)
		case flow.DependentDashboard:
			return a.handleDependentKey(m)
		}
	}
	if a.modal != modalNone || a.form.active() {
		return a, a.form.update(msg)
	}
	return a, nil
}

// enter syncs the App with the controller's screen after a transition.
func (a *App) enter() {
	a.screen = a.ctl.Screen()
	a.cursor = 0
	a.form = form{}
	switch a.screen {
	case flow.GuardianProfile:
		p := a.ctl.Profile()
		a.form = newForm(
			field{label: "Name", value: p.Name},
			field{label: "Phone", placeholder: identity.CountryPrefix + "901234567", value: p.ContactNumber, limit: 20},
		)
	case flow.Verification:
		a.form = newForm(field{label: "Code", placeholder: "······", limit: 6})
	case flow.DependentLinkSetup:
		l := a.ctl.Link()
		a.form = newForm(
			field{label: "Link key", placeholder: "ABC123", value: l.Key, limit: identity.LinkKeyLength},
			field{label: "Name (optional)", value: l.DisplayName},
		)
	}
}

// apply runs one controller step and follows the screen it lands on.
func (a *App) apply(err error) tea.Cmd {
	before := a.screen
	if a.ctl.Screen() != before {
		a.enter()
		a.status = ""
	}
	if err != nil {
		a.status = describe(err)
		if errors.Is(err, identity.ErrInvalidCode) && a.screen == flow.Verification {
			a.form.reset()
		}
	}
	return a.form.focusCmd()
}

func (a *App) handleRoleKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "q":
		return a, tea.Quit
	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}
	case "down", "j":
		if a.cursor < 1 {
			a.cursor++
		}
	case "enter":
		role := identity.RoleGuardian
		if a.cursor == 1 {
			role = identity.RoleDependent
		}
		return a, a.apply(a.ctl.SelectRole(a.ctx, role))
	}
	return a, nil
}

func (a *App) handleFormKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "esc":
		return a, a.apply(a.ctl.Back(a.ctx))
	case "tab", "shift+tab":
		return a, a.form.cycle(m.String() == "shift+tab")
	case "ctrl+r":
		if a.screen == flow.Verification {
			if err := a.ctl.Resend(a.ctx); err != nil {
				a.status = describe(err)
			} else {
				a.status = "code sent again"
			}
		}
		return a, nil
	case "enter":
		vals := a.form.values()
		switch a.screen {
		case flow.GuardianProfile:
			return a, a.apply(a.ctl.SubmitProfile(a.ctx, vals[0], vals[1]))
		case flow.Verification:
			return a, a.apply(a.ctl.SubmitCode(strings.TrimSpace(vals[0])))
		case flow.DependentLinkSetup:
			return a, a.apply(a.ctl.SubmitLink(vals[0], vals[1]))
		}
	}
	return a, a.form.update(m)
}

func (a *App) handleDeviceKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "enter":
		return a, a.apply(a.ctl.ConfirmDeviceKey(a.ctx))
	case "esc":
		return a, a.apply(a.ctl.Back(a.ctx))
	}
	return a, nil
}

func (a *App) handlePermissionKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	perms := a.ctl.Permissions()
	if len(perms) == 0 {
		return a, nil
	}
	if a.cursor >= len(perms) {
		a.cursor = len(perms) - 1
	}
	kind := perms[a.cursor].Kind
	switch m.String() {
	case "esc":
		return a, a.apply(a.ctl.Back(a.ctx))
	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}
	case "down", "j":
		if a.cursor < len(perms)-1 {
			a.cursor++
		}
	case "enter", "g":
		outcome := capability.Granted
		if acq, ok := a.acquirers[kind]; ok {
			var err error
			outcome, err = capability.Request(a.ctx, acq)
			if err != nil {
				a.status = "error: " + err.Error()
			}
		}
		return a, a.resolve(kind, outcome)
	case "d":
		return a, a.resolve(kind, capability.Denied)
	case "r":
		return a, a.apply(a.ctl.RetryPermission(kind))
	}
	return a, nil
}

func (a *App) resolve(kind capability.Kind, outcome capability.Outcome) tea.Cmd {
	err := a.ctl.Resolve(a.ctx, kind, outcome)
	cmd := a.apply(err)
	if a.screen == flow.PermissionGrant && err == nil {
		a.advanceCursor()
	}
	return cmd
}

// advanceCursor moves to the next unanswered permission.
func (a *App) advanceCursor() {
	perms := a.ctl.Permissions()
	for i := range perms {
		j := (a.cursor + 1 + i) % len(perms)
		if !perms[j].Outcome.Resolved() {
			a.cursor = j
			return
		}
	}
}

func (a *App) handleGuardianKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	deps := a.session.Dependents()
	switch m.String() {
	case "q":
		return a, tea.Quit
	case "tab", "s":
		a.cursor = 0
		if a.view == viewOverview {
			a.view = viewSettings
			return a, a.loadStats()
		}
		a.view = viewOverview
	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}
	case "down", "j":
		if a.cursor < len(deps)-1 {
			a.cursor++
		}
	case "a":
		if a.session.NeedsUpgradeForMoreDependents() {
			a.openUpgrade("The free plan links one dependent. Enter an activation code to link more.")
			return a, a.form.focusCmd()
		}
		a.modal = modalLink
		a.form = newForm(
			field{label: "Link key", placeholder: "ABC123", limit: identity.LinkKeyLength},
			field{label: "Name (optional)"},
		)
		return a, a.form.focusCmd()
	case "u":
		a.openUpgrade("")
		return a, a.form.focusCmd()
	case "l":
		if a.view != viewOverview || a.cursor >= len(deps) {
			return a, nil
		}
		if err := a.session.CanUse(capability.Microphone); err != nil {
			if errors.Is(err, identity.ErrEntitlementRequired) {
				a.openUpgrade("Listening is a premium feature. Enter an activation code to unlock it.")
				return a, a.form.focusCmd()
			}
			a.status = describe(err)
			return a, nil
		}
		return a, a.listenCmd(deps[a.cursor])
	case "f":
		if a.view == viewSettings {
			a.cfg.UI.DateFormat = next(dateFormats, a.dateLayout())
			return a, a.savePrefsCmd()
		}
	case "z":
		if a.view == viewSettings {
			zone := next(timezones, a.cfg.UI.Timezone)
			loc, err := time.LoadLocation(zone)
			if err != nil {
				a.status = "error: " + err.Error()
				return a, nil
			}
			a.cfg.UI.Timezone = zone
			a.tz = loc
			return a, a.savePrefsCmd()
		}
	case "h":
		return a, a.openSupport()
	case "x":
		if a.view == viewSettings && a.cursor < len(deps) {
			a.pending = deps[a.cursor].ID
			a.modal = modalConfirmUnlink
		}
	case "w":
		if a.view == viewSettings && a.maintenance != nil {
			a.modal = modalConfirmWipe
		}
	case "o":
		a.modal = modalConfirmSignOut
	}
	return a, nil
}

func (a *App) handleDependentKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "q":
		return a, tea.Quit
	case "o":
		a.modal = modalConfirmSignOut
	case "w":
		if a.maintenance != nil {
			a.modal = modalConfirmWipe
		}
	case "h":
		return a, a.openSupport()
	}
	return a, nil
}

// openSupport shows the help form, prefilled from the account where it can be.
func (a *App) openSupport() tea.Cmd {
	if a.support == nil {
		return nil
	}
	acct, _ := a.session.Account()
	a.modal = modalSupport
	a.form = newForm(
		field{label: "Name", value: acct.Name},
		field{label: "Phone", placeholder: identity.CountryPrefix + "901234567", value: acct.ContactNumber, limit: 20},
		field{label: "Message", limit: sms.MaxSupportMessage},
	)
	return a.form.focusCmd()
}

func (a *App) openUpgrade(reason string) {
	a.modal = modalUpgrade
	a.status = reason
	a.form = newForm(field{label: "Activation code", secret: true})
}

func (a *App) closeModal() {
	a.modal = modalNone
	a.pending = ""
	a.form = form{}
}

func (a *App) handleModalKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.modal {
	case modalConfirmUnlink, modalConfirmSignOut, modalConfirmWipe:
		switch m.String() {
		case "y", "Y":
			modal, id := a.modal, a.pending
			a.closeModal()
			switch modal {
			case modalConfirmUnlink:
				if a.cursor > 0 {
					a.cursor--
				}
				return a, a.unlinkCmd(id)
			case modalConfirmSignOut:
				a.apply(a.ctl.SignOut(a.ctx))
				a.view = viewOverview
				return a, a.form.focusCmd()
			case modalConfirmWipe:
				return a, a.wipe()
			}
		case "n", "N", "esc":
			a.closeModal()
		}
		return a, nil
	}

	switch m.String() {
	case "esc":
		a.closeModal()
		return a, nil
	case "tab", "shift+tab":
		return a, a.form.cycle(m.String() == "shift+tab")
	case "enter":
		vals := a.form.values()
		switch a.modal {
		case modalUpgrade:
			a.closeModal()
			return a, a.activateCmd(vals[0])
		case modalSupport:
			msg := sms.SupportMessage{Name: vals[0], ContactNumber: vals[1], Message: vals[2]}
			if _, err := msg.Validate(); err != nil {
				// keep the form open so the field can be corrected
				a.status = describe(err)
				return a, nil
			}
			a.closeModal()
			return a, a.supportCmd(msg)
		}
		a.closeModal()
		return a, a.linkCmd(vals[0], vals[1])
	}
	return a, a.form.update(m)
}

// commands
func (a *App) loadStats() tea.Cmd {
	if a.maintenance == nil {
		return nil
	}
	return func() tea.Msg {
		st, err := a.maintenance.Stats(a.ctx)
		if err != nil {
			return errMsg{err}
		}
		return statsMsg(st)
	}
}

func (a *App) linkCmd(key, name string) tea.Cmd {
	return func() tea.Msg {
		similar := a.session.SimilarLinkKeys(key)
		acct, err := a.session.LinkDependent(a.ctx, key, name)
		if err != nil {
			return errMsg{err}
		}
		msg := fmt.Sprintf("dependent linked (%d/%d)", acct.DependentCount, acct.DependentLimit)
		if len(similar) > 0 {
			msg += fmt.Sprintf(" - key looks like %s's (%s)", similar[0].DisplayName, similar[0].LinkKey)
		}
		return statusMsg(msg)
	}
}

func (a *App) listenCmd(d identity.Dependent) tea.Cmd {
	return func() tea.Msg {
		outcome := capability.Granted
		if acq, ok := a.acquirers[capability.Microphone]; ok {
			var err error
			if outcome, err = capability.Request(a.ctx, acq); err != nil {
				return errMsg{err}
			}
		}
		if outcome != capability.Granted {
			return statusMsg("microphone access denied")
		}
		return statusMsg(fmt.Sprintf("listening to %s", d.DisplayName))
	}
}

func (a *App) supportCmd(msg sms.SupportMessage) tea.Cmd {
	return func() tea.Msg {
		if err := a.support.SendSupportMessage(a.ctx, msg); err != nil {
			return errMsg{err}
		}
		return statusMsg("message sent, we will get back to you soon")
	}
}

func (a *App) savePrefsCmd() tea.Cmd {
	cfg := a.cfg
	return func() tea.Msg {
		if err := config.Save(cfg); err != nil {
			return errMsg{err}
		}
		return statusMsg(fmt.Sprintf("preferences saved (%s, %s)", cfg.UI.DateFormat, cfg.UI.Timezone))
	}
}

// next returns the entry after cur in opts, wrapping around; unknown values start at opts[0].
func next(opts []string, cur string) string {
	for i, o := range opts {
		if o == cur {
			return opts[(i+1)%len(opts)]
		}
	}
	return opts[0]
}

func (a *App) unlinkCmd(id string) tea.Cmd {
	return func() tea.Msg {
		if _, err := a.session.UnlinkDependent(a.ctx, id); err != nil {
			return errMsg{err}
		}
		return statusMsg("dependent removed")
	}
}

func (a *App) activateCmd(code string) tea.Cmd {
	return func() tea.Msg {
		acct, err := a.session.ActivateEntitlement(a.ctx, code)
		if err != nil {
			return errMsg{err}
		}
		return statusMsg(fmt.Sprintf("premium active until %s", a.formatDate(*acct.Entitlement.ExpiresAt)))
	}
}

// wipe clears every stored entry and restarts onboarding.
func (a *App) wipe() tea.Cmd {
	if err := a.maintenance.Reset(a.ctx); err != nil {
		a.status = "error: " + err.Error()
		return nil
	}
	if err := a.ctl.Reset(a.ctx); err != nil {
		a.status = "error: " + err.Error()
		return nil
	}
	a.view = viewOverview
	a.stats = nil
	a.enter()
	a.status = "local data wiped"
	return a.form.focusCmd()
}

func (a *App) formatDate(t time.Time) string {
	return t.In(a.tz).Format(a.dateLayout())
}

// describe turns core errors into the line shown under the current screen.
func describe(err error) string {
	var verr *identity.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Message
	case errors.Is(err, identity.ErrInvalidCode):
		return "wrong code, try again"
	case errors.Is(err, flow.ErrResendTooEarly):
		return "please wait before requesting a new code"
	case errors.Is(err, identity.ErrCapacityExceeded):
		return "dependent limit reached - activate premium to link more"
	case errors.Is(err, identity.ErrEntitlementRequired):
		return "premium needed - activate it from the dashboard"
	case errors.Is(err, flow.ErrInvalidTransition):
		return ""
	}
	return "error: " + err.Error()
}
