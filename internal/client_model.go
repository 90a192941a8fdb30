package internal

import (
	"os"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"timekeeper/internal/activity"
	"timekeeper/internal/cards"
	"timekeeper/internal/syncclient"
)

// tui model struct for all the components and modes
type TUIModel struct {
	textInput textinput.Model
	api       *APIClient
	transport *clientTransport
	session   *syncclient.Session
	scheduler *syncclient.Scheduler
	detector  *activity.Detector
	deck      *cards.Deck
	logger    zerolog.Logger

	wsURL      string
	identity   string
	credential string

	mode       appMode
	authIntent authIntent
	loading    bool
	notices    []string

	width       int
	height      int
	isConnected bool
	connErr     error
	quitting    bool
}

type appMode int

const (
	modeAuthMenu appMode = iota
	modeAuthIdentity
	modeAuthCredential
	modeDashboard
)

type authIntent int

const (
	authIntentLogin authIntent = iota
	authIntentSignup
)

const maxNotices = 4

// ClientOptions wires a TUIModel.
type ClientOptions struct {
	ServerURL string
	WSPath    string
	Identity  string
	Deck      *cards.Deck
	Device    activity.DeviceClass
	Logger    zerolog.Logger
}

func NewTUIModel(opts ClientOptions) (*TUIModel, error) {
	wsURL, err := realtimeURL(opts.ServerURL, opts.WSPath)
	if err != nil {
		return nil, err
	}
	deck := opts.Deck
	if deck == nil {
		if deck, err = cards.Load(""); err != nil {
			return nil, err
		}
	}

	input := textinput.New()
	input.CharLimit = 64
	input.Prompt = ""
	input.Blur()

	api := NewAPIClient(opts.ServerURL)
	transport := &clientTransport{api: api}
	detector := activity.NewDetector(opts.Device)
	session := syncclient.NewSession(syncclient.Options{
		Transport: transport,
		Activity:  detector,
		Deck:      deck,
		Logger:    opts.Logger.With().Str("component", "session").Logger(),
	})

	identity := opts.Identity
	if identity == "" {
		identity = defaultIdentity()
	}

	return &TUIModel{
		textInput: input,
		api:       api,
		transport: transport,
		session:   session,
		scheduler: syncclient.NewScheduler(nil, syncclient.TickInterval, session.Tick),
		detector:  detector,
		deck:      deck,
		logger:    opts.Logger,
		wsURL:     wsURL,
		identity:  identity,
		mode:      modeAuthMenu,
	}, nil
}

// init user
func defaultIdentity() string {
	if user := os.Getenv("TIMEKEEPER_USER"); user != "" {
		return user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return ""
}

func (model *TUIModel) Init() tea.Cmd {
	return refreshCmd()
}

func (model *TUIModel) addNotice(text string) {
	model.notices = append(model.notices, text)
	if len(model.notices) > maxNotices {
		model.notices = model.notices[len(model.notices)-maxNotices:]
	}
}

// shutdown stops the tick loop and closes the realtime connection.
func (model *TUIModel) shutdown() {
	model.quitting = true
	model.scheduler.Stop()
	if rt := model.transport.setRealtime(nil); rt != nil {
		_ = rt.Close()
	}
}

// RunClient starts the Bubble Tea program with focus and all-motion mouse
// reporting, which feed the activity detector.
func RunClient(opts ClientOptions) error {
	model, err := NewTUIModel(opts)
	if err != nil {
		return err
	}
	program := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
		tea.WithReportFocus(),
	)
	_, err = program.Run()
	model.shutdown()
	return err
}
