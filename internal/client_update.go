package internal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"timekeeper/internal/activity"
	"timekeeper/internal/protocol"
	"timekeeper/internal/syncclient"
)

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		if typedMessage.Type == tea.KeyCtrlC {
			model.shutdown()
			return model, tea.Quit
		}
		switch model.mode {
		case modeAuthMenu:
			return model.updateAuthMenu(typedMessage)
		case modeAuthIdentity, modeAuthCredential:
			return model.updateAuthPrompt(typedMessage)
		case modeDashboard:
			return model.updateDashboard(typedMessage)
		}
		return model, nil

	case tea.FocusMsg:
		model.detector.SetFocused(true)
		return model, nil

	case tea.BlurMsg:
		model.detector.SetFocused(false)
		return model, nil

	case tea.MouseMsg:
		model.detector.SetPointerInside(activity.PointerInside(typedMessage.X, typedMessage.Y, model.width, model.height))
		return model, nil

	case tea.WindowSizeMsg:
		model.width = typedMessage.Width
		model.height = typedMessage.Height
		model.detector.SetVisible(model.width > 0 && model.height > 0)
		return model, nil

	case refreshMsg:
		if model.quitting {
			return model, nil
		}
		return model, refreshCmd()

	case authResultMsg:
		return model.handleAuthResult(typedMessage)

	case connectedMsg:
		if model.mode != modeDashboard {
			_ = typedMessage.rt.Close()
			return model, nil
		}
		if prev := model.transport.setRealtime(typedMessage.rt); prev != nil {
			_ = prev.Close()
		}
		model.isConnected = true
		model.connErr = nil
		model.logger.Info().Str("url", model.wsURL).Msg("realtime connected")
		model.session.AnnounceNow()
		return model, readOnceCmd(typedMessage.rt)

	case connectFailedMsg:
		model.connErr = typedMessage.err
		model.logger.Warn().Err(typedMessage.err).Msg("realtime dial failed")
		if model.mode == modeDashboard {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case realtimeMsg:
		if typedMessage.rt != model.transport.current() {
			return model, nil
		}
		model.applyEvent(typedMessage.env)
		return model, readOnceCmd(typedMessage.rt)

	case realtimeClosedMsg:
		if typedMessage.rt != model.transport.current() {
			return model, nil
		}
		model.transport.setRealtime(nil)
		_ = typedMessage.rt.Close()
		model.isConnected = false
		model.connErr = typedMessage.err
		model.logger.Warn().Err(typedMessage.err).Msg("realtime connection lost")
		if model.mode == modeDashboard && !model.quitting {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case reconnectMsg:
		if model.mode == modeDashboard && !model.isConnected && !model.quitting {
			return model, model.connectCmd()
		}
		return model, nil
	}
	return model, nil
}

func (model *TUIModel) updateAuthMenu(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "1", "l", "L":
		return model, model.beginAuth(authIntentLogin)
	case "2", "s", "S":
		return model, model.beginAuth(authIntentSignup)
	case "q", "Q", "esc":
		model.shutdown()
		return model, tea.Quit
	}
	return model, nil
}

func (model *TUIModel) beginAuth(intent authIntent) tea.Cmd {
	model.authIntent = intent
	model.mode = modeAuthIdentity
	model.textInput.EchoMode = textinput.EchoNormal
	model.textInput.SetValue(model.identity)
	model.textInput.Placeholder = "Enter identity…"
	model.textInput.Prompt = "identity> "
	return model.textInput.Focus()
}

func (model *TUIModel) backToMenu() {
	model.mode = modeAuthMenu
	model.credential = ""
	model.textInput.SetValue("")
	model.textInput.EchoMode = textinput.EchoNormal
	model.textInput.Blur()
	model.textInput.Placeholder = ""
	model.textInput.Prompt = ""
}

func (model *TUIModel) updateAuthPrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if model.loading {
		return model, nil
	}
	switch key.Type {
	case tea.KeyEsc:
		model.backToMenu()
		return model, nil
	case tea.KeyEnter:
		value := model.textInput.Value()
		if model.mode == modeAuthIdentity {
			trimmed := strings.TrimSpace(value)
			if trimmed == "" {
				model.addNotice("Identity cannot be empty.")
				return model, nil
			}
			model.identity = trimmed
			model.mode = modeAuthCredential
			model.textInput.SetValue("")
			model.textInput.EchoMode = textinput.EchoPassword
			model.textInput.EchoCharacter = '•'
			model.textInput.Placeholder = "Enter credential…"
			model.textInput.Prompt = "credential> "
			return model, nil
		}
		if value == "" {
			model.addNotice("Credential cannot be empty.")
			return model, nil
		}
		model.credential = value
		model.loading = true
		return model, model.authCmd(model.authIntent, model.identity, value)
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return model, cmd
}

func (model *TUIModel) handleAuthResult(result authResultMsg) (tea.Model, tea.Cmd) {
	model.loading = false
	if result.err != nil {
		model.addNotice(describeError(result.err))
		model.logger.Warn().Err(result.err).Str("identity", model.identity).Msg("authentication failed")
		model.backToMenu()
		return model, nil
	}
	identity := result.result.Identity
	if identity == "" {
		identity = model.identity
	}
	model.identity = identity
	model.mode = modeDashboard
	model.textInput.SetValue("")
	model.textInput.Blur()
	model.notices = nil

	model.session.Authenticate(identity, model.credential, result.result.Progress)
	model.scheduler.Start()
	if model.authIntent == authIntentSignup {
		model.addNotice(fmt.Sprintf("Welcome, %s. Your time starts now.", identity))
	} else {
		model.addNotice(fmt.Sprintf("Welcome back, %s.", identity))
	}
	return model, model.connectCmd()
}

func (model *TUIModel) updateDashboard(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "c", "C", " ":
		if err := model.session.Claim(); err != nil {
			model.addNotice(describeError(err))
			return model, nil
		}
		model.addNotice("Reward claimed.")
	case "d", "D":
		card, err := model.session.Draw()
		if err != nil {
			model.addNotice(describeError(err))
			return model, nil
		}
		model.addNotice(fmt.Sprintf("You drew %s.", model.deck.Name(card.ID)))
	case "r", "R":
		if err := model.session.Reset(); err != nil {
			model.addNotice(describeError(err))
			return model, nil
		}
		model.addNotice("Progress reset.")
	case "h", "H":
		hidden, err := model.session.ToggleHideCurrency()
		if err != nil {
			model.addNotice(describeError(err))
			return model, nil
		}
		if hidden {
			model.addNotice("Currency hidden from others.")
		} else {
			model.addNotice("Currency visible to others.")
		}
	case "l", "L":
		model.logout()
	case "q", "Q", "esc":
		model.shutdown()
		return model, tea.Quit
	}
	return model, nil
}

func (model *TUIModel) logout() {
	model.scheduler.Stop()
	model.session.Logout()
	if rt := model.transport.setRealtime(nil); rt != nil {
		_ = rt.Close()
	}
	model.isConnected = false
	model.connErr = nil
	model.backToMenu()
	model.notices = nil
	model.addNotice("Logged out.")
}

func (model *TUIModel) applyEvent(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeGlobalCounter:
		value, err := env.Counter()
		if err != nil {
			model.logger.Debug().Err(err).Msg("bad counter event")
			return
		}
		model.session.OnGlobalCounter(value)
	case protocol.TypeRoster:
		roster, err := env.Roster()
		if err != nil {
			model.logger.Debug().Err(err).Msg("bad roster event")
			return
		}
		model.session.OnRoster(roster)
	default:
		model.logger.Debug().Str("type", string(env.Type)).Msg("ignoring realtime event")
	}
}

func describeError(err error) string {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return capitalize(apiErr.Message) + "."
	case errors.Is(err, syncclient.ErrInsufficientCurrency):
		return "Not enough currency to draw."
	case errors.Is(err, syncclient.ErrNoClaimWindow):
		return "Nothing to claim right now."
	case errors.Is(err, syncclient.ErrNotAuthenticated):
		return "Log in first."
	default:
		return "Error: " + err.Error()
	}
}

func capitalize(text string) string {
	if text == "" {
		return text
	}
	return strings.ToUpper(text[:1]) + text[1:]
}
