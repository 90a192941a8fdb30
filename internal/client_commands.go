package internal

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"timekeeper/internal/protocol"
)

const (
	refreshInterval = 200 * time.Millisecond
	retryDelay      = 2 * time.Second
)

type (
	refreshMsg       struct{}
	reconnectMsg     struct{}
	connectedMsg     struct{ rt *RealtimeClient }
	connectFailedMsg struct{ err error }
	realtimeMsg      struct {
		rt  *RealtimeClient
		env protocol.Envelope
	}
	realtimeClosedMsg struct {
		rt  *RealtimeClient
		err error
	}
	authResultMsg struct {
		result AuthResult
		err    error
	}
)

// refreshCmd repaints the dashboard; the session changes on its own ticker.
func refreshCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func (model *TUIModel) authCmd(intent authIntent, identity, credential string) tea.Cmd {
	api := model.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		defer cancel()
		var (
			result AuthResult
			err    error
		)
		if intent == authIntentSignup {
			result, err = api.Signup(ctx, identity, credential)
		} else {
			result, err = api.Login(ctx, identity, credential)
		}
		return authResultMsg{result: result, err: err}
	}
}

// websocket dial
func (model *TUIModel) connectCmd() tea.Cmd {
	wsURL := model.wsURL
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		defer cancel()
		rt, err := DialRealtime(ctx, wsURL)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		return connectedMsg{rt: rt}
	}
}

// readOnceCmd waits for a single server event on rt.
func readOnceCmd(rt *RealtimeClient) tea.Cmd {
	return func() tea.Msg {
		env, err := rt.ReadEvent()
		if err != nil {
			return realtimeClosedMsg{rt: rt, err: err}
		}
		return realtimeMsg{rt: rt, env: env}
	}
}
