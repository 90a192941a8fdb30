package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"timekeeper/internal/presence"
	"timekeeper/internal/syncclient"
)

// pre styled colors// all from lipglpss
var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuBoxStyle       = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	menuItemStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).PaddingLeft(1)
	menuHotkeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	noticeBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("95")).Padding(1, 2).MarginTop(1)
	headerStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	statBoxStyle       = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 2).MarginTop(1).MarginRight(1)
	statLabelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	statValueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("253")).Bold(true)
	claimBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.ThickBorder()).BorderForeground(lipgloss.Color("214")).Padding(0, 2).MarginTop(1)
	claimedStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	rosterBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2).MarginTop(1)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	activeUserStyle    = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	idleStyle          = statusStyle.Copy().Foreground(lipgloss.Color("244")).Italic(true)
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

func (model *TUIModel) View() string {
	if model.quitting {
		return ""
	}
	switch model.mode {
	case modeAuthMenu:
		return model.renderAuthMenuView()
	case modeAuthIdentity, modeAuthCredential:
		return model.renderAuthPromptView()
	default:
		return model.renderDashboardView(model.session.View())
	}
}

func (model *TUIModel) renderAuthMenuView() string {
	title := appTitleStyle.Render("Timekeeper")
	subtitle := subtitleStyle.Render("Time spent here adds up, for you and for everyone")

	options := []string{
		renderMenuOption("1", "Log in"),
		renderMenuOption("2", "Sign up"),
		renderMenuOption("q", "Quit"),
	}

	viewSections := []string{
		lipgloss.JoinVertical(lipgloss.Left, title, subtitle),
		menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, options...)),
	}

	if notices := model.renderSystemNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}

	viewSections = append(viewSections, menuHintStyle.Render("1) Log in  •  2) Sign up  •  q) Quit"))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderAuthPromptView() string {
	title := "Log in"
	if model.authIntent == authIntentSignup {
		title = "Create an account"
	}
	hint := "Enter your identity"
	if model.mode == modeAuthCredential {
		hint = "Enter your credential"
	}

	viewSections := []string{appTitleStyle.Render(title), menuHintStyle.Render(hint)}

	if model.loading {
		viewSections = append(viewSections, connectingStyle.Render("Working…"))
	}

	if notices := model.renderSystemNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}

	viewSections = append(viewSections, inputBoxStyle.Render(model.textInput.View()))
	viewSections = append(viewSections, menuHintStyle.Render("Enter to continue • Esc back"))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderDashboardView(view syncclient.View) string {
	headerSegments := []string{"Timekeeper", fmt.Sprintf("User %s", view.Identity), fmt.Sprintf("Server %s", model.api.baseURL)}
	header := headerStyle.Render(strings.Join(headerSegments, dividerStyle))

	var statusLine string
	switch {
	case model.isConnected:
		statusLine = connectedStyle.Render("Connected")
	case model.connErr != nil:
		statusLine = errorStyle.Render("Connection error: " + model.connErr.Error())
	default:
		statusLine = connectingStyle.Render("Connecting…")
	}
	if view.Active {
		statusLine = lipgloss.JoinHorizontal(lipgloss.Left, statusLine, dividerStyle, connectedStyle.Render("Active"))
	} else {
		statusLine = lipgloss.JoinHorizontal(lipgloss.Left, statusLine, dividerStyle, idleStyle.Render("Paused (focus the window to keep counting)"))
	}

	currency := fmt.Sprintf("%d", view.Available)
	if view.HideCurrency {
		currency += " (hidden)"
	}
	stats := lipgloss.JoinHorizontal(lipgloss.Top,
		renderStat("Everyone", formatDuration(view.GlobalCounter)),
		renderStat("You", formatDuration(view.Progress.ElapsedSeconds)),
		renderStat("Currency", currency),
	)

	sections := []string{header, statusLine, stats}

	if view.ClaimOpen {
		sections = append(sections, renderClaim(view))
	}

	sections = append(sections, model.renderRewards(view))
	sections = append(sections, model.renderRoster(view.Identity, view.Roster))

	if notices := model.renderSystemNotices(); notices != "" {
		sections = append(sections, notices)
	}

	sections = append(sections, menuHintStyle.Render("c claim • d draw • h hide currency • r reset • l logout • q quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderStat(label, value string) string {
	return statBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, statLabelStyle.Render(label), statValueStyle.Render(value)))
}

func renderClaim(view syncclient.View) string {
	if view.ClaimClaimed {
		return claimBoxStyle.Render(claimedStyle.Render("Claimed! +1 currency"))
	}
	seconds := view.ClaimRemaining.Seconds()
	return claimBoxStyle.Render(systemMessageStyle.Render(fmt.Sprintf("A reward is waiting. Press c to claim (%.1fs)", seconds)))
}

func (model *TUIModel) renderRewards(view syncclient.View) string {
	recent := view.Progress.RecentRewards()
	lines := []string{statLabelStyle.Render(fmt.Sprintf("Rewards (%d)", len(view.Progress.Rewards)))}
	if len(recent) == 0 {
		lines = append(lines, menuHintStyle.Render(fmt.Sprintf("No rewards yet. A draw costs %d.", model.deck.Cost)))
	} else {
		names := make([]string, 0, len(recent))
		for _, id := range recent {
			names = append(names, model.deck.Name(id))
		}
		lines = append(lines, statValueStyle.Render(strings.Join(names, ", ")))
	}
	if view.LastDraw != nil {
		lines = append(lines, systemMessageStyle.Render("Last draw: "+model.deck.Name(view.LastDraw.ID)))
	}
	return rosterBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (model *TUIModel) renderRoster(self string, roster []presence.Aggregated) string {
	lines := []string{statLabelStyle.Render(fmt.Sprintf("Online (%d)", len(roster)))}
	if len(roster) == 0 {
		lines = append(lines, menuHintStyle.Render("Nobody else is here yet."))
	}
	for _, entry := range roster {
		var nameStyle lipgloss.Style
		if entry.Identity == self {
			nameStyle = activeUserStyle
		} else {
			nameStyle = usernameStyle.Copy().Foreground(colorForUser(entry.Identity))
		}
		currency := "hidden"
		if !entry.HideCurrency {
			currency = fmt.Sprintf("%d", entry.Currency)
		}
		line := fmt.Sprintf("%s  %s  currency %s", nameStyle.Render(entry.Identity), formatDuration(entry.ElapsedSeconds), currency)
		if len(entry.RecentRewards) > 0 {
			names := make([]string, 0, len(entry.RecentRewards))
			for _, id := range entry.RecentRewards {
				names = append(names, model.deck.Name(id))
			}
			line += statLabelStyle.Render("  " + strings.Join(names, ", "))
		}
		lines = append(lines, line)
	}
	return rosterBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderMenuOption(hotkey string, label string) string {
	key := menuHotkeyStyle.Render(hotkey)
	return lipgloss.JoinHorizontal(lipgloss.Left, key, menuItemStyle.Render(label))
}

func (model *TUIModel) renderSystemNotices() string {
	if len(model.notices) == 0 {
		return ""
	}
	notices := make([]string, 0, len(model.notices))
	for _, text := range model.notices {
		notices = append(notices, systemMessageStyle.Render(text))
	}
	return noticeBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, notices...))
}

// formatDuration renders seconds as 1h02m03s, dropping leading zero units.
func formatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds) * time.Second
	hours := int64(d / time.Hour)
	minutes := int64(d/time.Minute) % 60
	secs := seconds % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh%02dm%02ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm%02ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// color for users
func colorForUser(name string) lipgloss.Color {
	if len(userColorPalette) == 0 {
		return lipgloss.Color("249")
	}
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
