package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/olimtoy/olimtoy/internal/capability"
	"github.com/olimtoy/olimtoy/internal/flow"
	"github.com/olimtoy/olimtoy/internal/identity"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	keyStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 2).Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63"))
	modalStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	proStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
)

func (a *App) View() string {
	var body string
	switch a.screen {
	case flow.RoleSelect:
		body = a.renderRoleSelect()
	case flow.GuardianProfile:
		body = a.renderForm("Guardian profile", "Your name and mobile number ("+identity.CountryPrefix+").")
	case flow.Verification:
		body = a.renderVerification()
	case flow.DependentLinkSetup:
		body = a.renderForm("Link a dependent", "Enter the 6-character key shown on the dependent's device.")
	case flow.DependentDeviceSetup:
		body = a.renderDeviceKey()
	case flow.PermissionGrant:
		body = a.renderPermissions()
	case flow.GuardianDashboard:
		if a.view == viewSettings {
			body = a.renderSettings()
		} else {
			body = a.renderGuardianDashboard()
		}
	case flow.DependentDashboard:
		body = a.renderDependentDashboard()
	}
	if a.modal != modalNone {
		body += "\n\n" + modalStyle.Render(a.renderModal())
	}
	if a.status != "" {
		body += "\n\n" + statusStyle.Render(a.fit(a.status))
	}
	return body
}

func (a *App) fit(s string) string {
	if a.width <= 0 {
		return s
	}
	return ansi.Truncate(s, a.width, "")
}

func (a *App) renderRoleSelect() string {
	title := titleStyle.Render("Olimtoy")
	options := []string{"I am a parent (guardian)", "This is my child's device (dependent)"}
	lines := []string{title, "Who is using this device?", ""}
	for i, o := range options {
		prefix := "  "
		if i == a.cursor {
			prefix = "> "
		}
		lines = append(lines, prefix+o)
	}
	lines = append(lines, "", mutedStyle.Render("[enter] Continue  [q] Quit"))
	return strings.Join(lines, "\n")
}

func (a *App) renderForm(title, hint string) string {
	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s",
		titleStyle.Render(title),
		a.fit(hint),
		a.form.view(),
		mutedStyle.Render("[enter] Continue  [tab] Next field  [esc] Back"))
}

func (a *App) renderVerification() string {
	p := a.ctl.Profile()
	resend := "[ctrl+r] Resend code"
	if left := a.ctl.ResendIn(a.now()); left > 0 {
		resend = fmt.Sprintf("Resend available in %ds", int(left.Round(time.Second)/time.Second))
	}
	return fmt.Sprintf("%s\nWe sent a 6-digit code to %s.\n\n%s\n\n%s\n%s",
		titleStyle.Render("Verify your number"),
		p.ContactNumber,
		a.form.view(),
		mutedStyle.Render(resend),
		mutedStyle.Render("[enter] Verify  [esc] Back"))
}

func (a *App) renderDeviceKey() string {
	left := a.ctl.DeviceKeyRemaining(a.now())
	return fmt.Sprintf("%s\nShow this key to your parent. They enter it on their device.\n\n%s\n\n%s\n%s",
		titleStyle.Render("Device key"),
		keyStyle.Render(a.ctl.DeviceKey()),
		mutedStyle.Render(fmt.Sprintf("Continuing in %ds", int(left.Round(time.Second)/time.Second))),
		mutedStyle.Render("[enter] Continue now  [esc] Back"))
}

func (a *App) renderPermissions() string {
	lines := []string{titleStyle.Render("Permissions"), "Answer each request. Denied requests can be retried later.", ""}
	for i, p := range a.ctl.Permissions() {
		prefix := "  "
		if i == a.cursor {
			prefix = "> "
		}
		lines = append(lines, fmt.Sprintf("%s%-12s %s", prefix, permissionLabel(p.Kind), outcomeLabel(p.Outcome)))
	}
	if left := len(a.ctl.PendingPermissions()); left > 0 {
		lines = append(lines, "", mutedStyle.Render(fmt.Sprintf("%d still waiting for an answer", left)))
	}
	lines = append(lines, "", mutedStyle.Render("[g] Allow  [d] Deny  [r] Ask again  [esc] Back"))
	return strings.Join(lines, "\n")
}

func permissionLabel(k capability.Kind) string {
	switch k {
	case capability.Camera:
		return "Camera"
	case capability.Location:
		return "Location"
	case capability.Microphone:
		return "Microphone"
	case capability.Battery:
		return "Battery"
	case capability.Device:
		return "Device info"
	}
	return k.String()
}

func outcomeLabel(o capability.Outcome) string {
	switch o {
	case capability.Granted:
		return proStyle.Render("allowed")
	case capability.Denied:
		return statusStyle.Render("denied")
	}
	return mutedStyle.Render("waiting")
}

func (a *App) renderGuardianDashboard() string {
	acct, ok := a.session.Account()
	if !ok {
		return titleStyle.Render("Dashboard") + "\nNo session."
	}
	plan := "Free plan"
	if acct.Entitlement.Active {
		plan = proStyle.Render("Premium")
	}
	lines := []string{
		titleStyle.Render("Dashboard - " + a.fit(acct.Name)),
		fmt.Sprintf("%s  |  %s  |  dependents %d/%d", acct.ContactNumber, plan, acct.DependentCount, acct.DependentLimit),
		"",
	}
	deps := a.session.Dependents()
	if len(deps) == 0 {
		lines = append(lines, mutedStyle.Render("No dependents linked yet. Press 'a' to link one."))
	}
	for i, d := range deps {
		prefix := "  "
		if i == a.cursor {
			prefix = "> "
		}
		lines = append(lines, fmt.Sprintf("%s%-20s %s", prefix, ansi.Truncate(d.DisplayName, 20, ""), d.LinkKey))
	}
	add := "[a] Add dependent"
	if a.session.NeedsUpgradeForMoreDependents() {
		add = "[a] Add dependent (premium)"
	}
	listen := "[l] Listen"
	if acct.CanUse(capability.Microphone) != nil {
		listen = "[l] Listen (premium)"
	}
	lines = append(lines, "",
		mutedStyle.Render(add+"  "+listen+"  [u] Activate premium  [s] Settings"),
		mutedStyle.Render("[h] Help  [o] Sign out  [q] Quit"))
	return strings.Join(lines, "\n")
}

func (a *App) renderSettings() string {
	acct, ok := a.session.Account()
	if !ok {
		return titleStyle.Render("Settings") + "\nNo session."
	}
	now := a.now()
	lines := []string{titleStyle.Render("Settings"), ""}
	switch {
	case acct.Entitlement.Expired(now):
		lines = append(lines, fmt.Sprintf("Premium expired on %s", a.formatDate(*acct.Entitlement.ExpiresAt)))
	case acct.Entitlement.Active:
		lines = append(lines, fmt.Sprintf("Premium: %d days left (until %s)", acct.Entitlement.DaysLeft(now), a.formatDate(*acct.Entitlement.ExpiresAt)))
	default:
		lines = append(lines, fmt.Sprintf("Free plan, %d-day trial available", acct.Entitlement.TrialDays))
	}
	lines = append(lines, fmt.Sprintf("Member since %s", a.formatDate(acct.CreatedAt)), "", "Dependents:")
	deps := a.session.Dependents()
	if len(deps) == 0 {
		lines = append(lines, mutedStyle.Render("  none"))
	}
	for i, d := range deps {
		prefix := "  "
		if i == a.cursor {
			prefix = "> "
		}
		lines = append(lines, fmt.Sprintf("%s%-20s %s  added %s", prefix, ansi.Truncate(d.DisplayName, 20, ""), d.LinkKey, d.AddedDate.Format(a.dateLayout())))
	}
	if a.stats != nil {
		stored := fmt.Sprintf("%d entries stored on this device", a.stats.Entries)
		if !a.stats.LastWrite.IsZero() {
			stored += ", last saved " + a.formatDate(a.stats.LastWrite)
		}
		lines = append(lines, "", mutedStyle.Render(stored))
	}
	lines = append(lines, "", fmt.Sprintf("Dates: %s  Timezone: %s", a.dateLayout(), a.tz.String()))
	keys := "[x] Unlink  [f] Date format  [z] Timezone  [tab] Back to dashboard  [o] Sign out"
	if a.maintenance != nil {
		keys += "  [w] Wipe local data"
	}
	lines = append(lines, "", mutedStyle.Render(keys))
	return strings.Join(lines, "\n")
}

func (a *App) renderDependentDashboard() string {
	acct, _ := a.session.Account()
	lines := []string{
		titleStyle.Render("Device linked - " + a.fit(acct.Name)),
		"This device is supervised. Your parent can see it in their dashboard.",
	}
	if key := a.ctl.DeviceKey(); key != "" {
		lines = append(lines, "", keyStyle.Render(key))
	}
	keys := "[h] Help  [o] Sign out  [q] Quit"
	if a.maintenance != nil {
		keys = "[h] Help  [o] Sign out  [w] Wipe local data  [q] Quit"
	}
	lines = append(lines, "", mutedStyle.Render(keys))
	return strings.Join(lines, "\n")
}

func (a *App) renderModal() string {
	switch a.modal {
	case modalLink:
		return titleStyle.Render("Link a dependent") + "\n" + a.form.view() + "\n[enter] Link  [tab] Next field  [esc] Cancel"
	case modalUpgrade:
		return titleStyle.Render("Activate premium") + "\n" + a.form.view() + "\n[enter] Activate  [esc] Cancel"
	case modalConfirmUnlink:
		return titleStyle.Render("Unlink dependent?") + "\nThe device will no longer be supervised.\n[y] Yes  [n] No"
	case modalConfirmSignOut:
		return titleStyle.Render("Sign out?") + "\nThis removes the account and linked dependents from this device.\n[y] Yes  [n] No"
	case modalSupport:
		return titleStyle.Render("Contact us") + "\nHow can we help?\n" + a.form.view() + "\n[enter] Send  [tab] Next field  [esc] Cancel"
	case modalConfirmWipe:
		return titleStyle.Render("Wipe local data?") + "\nEvery stored entry is deleted.\n[y] Yes  [n] No"
	default:
		return ""
	}
}

func (a *App) dateLayout() string {
	if a.cfg.UI.DateFormat != "" {
		return a.cfg.UI.DateFormat
	}
	return "2006-01-02"
}
