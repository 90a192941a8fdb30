// Package syncclient runs the client side of progress accrual: the one
// second tick, periodic server syncs, presence announcements and the reward
// claim window.
package syncclient

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"timekeeper/internal/cards"
	"timekeeper/internal/presence"
	"timekeeper/internal/progress"
)

const (
	// TickInterval is one logical second of accrual.
	TickInterval = time.Second
	// SyncEveryTicks counts active ticks between progress syncs.
	SyncEveryTicks = 10
	// AnnounceEveryTicks counts ticks, active or not, between announcements.
	AnnounceEveryTicks = 5
	// ClaimWindow is how long a reward opportunity stays open.
	ClaimWindow = 3000 * time.Millisecond
	// ClaimAckDelay keeps a claimed window visible before it closes.
	ClaimAckDelay  = 400 * time.Millisecond
	DefaultTimeout = 5 * time.Second
)

// Errors returned by the user actions on a Session.
var (
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrInsufficientCurrency = errors.New("not enough currency")
	ErrNoClaimWindow        = errors.New("no reward to claim")
)

// SyncResponse is the server's answer to a progress sync.
type SyncResponse struct {
	Progress      progress.State `json:"progress"`
	GlobalCounter int64          `json:"globalCounter"`
}

// Transport carries syncs and announcements to the server.
type Transport interface {
	SyncProgress(ctx context.Context, identity, credential string, state progress.State) (SyncResponse, error)
	Announce(ctx context.Context, snap presence.Snapshot) error
}

// ActivitySource gates local accrual.
type ActivitySource interface {
	IsActive() bool
	SetAuthenticated(bool)
}

type Options struct {
	Clock     clockwork.Clock
	Transport Transport
	Activity  ActivitySource
	Deck      *cards.Deck
	Rand      *rand.Rand
	Logger    zerolog.Logger
	// Dispatch runs network calls; the default starts a goroutine.
	Dispatch func(func())
	Timeout  time.Duration
}

// View is a consistent copy of the session for rendering.
type View struct {
	Identity       string
	Authenticated  bool
	Active         bool
	Progress       progress.State
	Available      int64
	GlobalCounter  int64
	Roster         []presence.Aggregated
	HideCurrency   bool
	ClaimOpen      bool
	ClaimClaimed   bool
	ClaimRemaining time.Duration
	LastDraw       *cards.Card
}

type claimWindow struct {
	seq      uint64
	deadline time.Time
	claimed  bool
	timer    clockwork.Timer
}

// Session is the Unauthenticated -> Authenticated state machine.
type Session struct {
	mu sync.Mutex

	clock     clockwork.Clock
	transport Transport
	activity  ActivitySource
	deck      *cards.Deck
	rng       *rand.Rand
	logger    zerolog.Logger
	dispatch  func(func())
	timeout   time.Duration

	authenticated bool
	identity      string
	credential    string
	state         progress.State
	hideCurrency  bool

	sinceSync     int
	sinceAnnounce int

	claim    *claimWindow
	claimSeq uint64
	lastDraw *cards.Card

	globalCounter int64
	roster        []presence.Aggregated
}

// NewSession starts Unauthenticated; nil options fall back to a real clock,
// goroutine dispatch and DefaultTimeout.
func NewSession(opts Options) *Session {
	s := &Session{
		clock:     opts.Clock,
		transport: opts.Transport,
		activity:  opts.Activity,
		deck:      opts.Deck,
		rng:       opts.Rand,
		logger:    opts.Logger,
		dispatch:  opts.Dispatch,
		timeout:   opts.Timeout,
		state:     progress.Default(),
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.dispatch == nil {
		s.dispatch = func(fn func()) { go fn() }
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	return s
}

// Authenticate moves the session to Authenticated with the progress the
// server returned on signup or login, and announces presence.
func (s *Session) Authenticate(identity, credential string, state progress.State) {
	s.mu.Lock()
	s.authenticated = true
	s.identity = identity
	s.credential = credential
	s.state = state.Clone()
	s.sinceSync = 0
	s.sinceAnnounce = 0
	s.mu.Unlock()
	if s.activity != nil {
		s.activity.SetAuthenticated(true)
	}
	s.logger.Info().Str("identity", identity).Msg("session authenticated")
	s.flush(false, true)
}

// Logout returns the session to Unauthenticated and forgets everything that
// belonged to the previous user, including any open window.
func (s *Session) Logout() {
	s.mu.Lock()
	s.authenticated = false
	s.identity = ""
	s.credential = ""
	s.state = progress.Default()
	s.hideCurrency = false
	s.lastDraw = nil
	s.sinceSync = 0
	s.sinceAnnounce = 0
	s.closeClaimLocked()
	s.mu.Unlock()
	if s.activity != nil {
		s.activity.SetAuthenticated(false)
	}
}

// Tick advances one logical second.
func (s *Session) Tick() {
	s.mu.Lock()
	if !s.authenticated {
		s.mu.Unlock()
		return
	}
	if s.activity == nil || s.activity.IsActive() {
		s.state.ElapsedSeconds++
		s.sinceSync++
	}
	s.sinceAnnounce++

	doSync := s.sinceSync >= SyncEveryTicks
	doAnnounce := s.sinceAnnounce >= AnnounceEveryTicks
	if s.checkThresholdLocked() {
		doSync, doAnnounce = true, true
	}
	s.mu.Unlock()

	s.flush(doSync, doAnnounce)
}

// checkThresholdLocked opens a claim window the first time elapsed time
// crosses a reward boundary. It never opens a second window.
func (s *Session) checkThresholdLocked() bool {
	idx := s.state.ThresholdIndex()
	if idx <= s.state.RewardThresholdIndex || s.claim != nil {
		return false
	}
	s.state.RewardThresholdIndex = idx
	s.claimSeq++
	seq := s.claimSeq
	s.claim = &claimWindow{
		seq:      seq,
		deadline: s.clock.Now().Add(ClaimWindow),
	}
	s.claim.timer = s.clock.AfterFunc(ClaimWindow, func() { s.expireClaim(seq) })
	s.logger.Debug().Int64("threshold", idx).Msg("claim window opened")
	return true
}

func (s *Session) expireClaim(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claim == nil || s.claim.seq != seq || s.claim.claimed {
		return
	}
	s.claim = nil
	s.logger.Debug().Msg("claim window expired")
}

func (s *Session) finishClaim(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claim != nil && s.claim.seq == seq {
		s.claim = nil
	}
}

func (s *Session) closeClaimLocked() {
	if s.claim == nil {
		return
	}
	if s.claim.timer != nil {
		s.claim.timer.Stop()
	}
	s.claim = nil
}

// Claim takes the reward of the open window. The window stays visible for
// ClaimAckDelay so the acknowledgment can be shown.
func (s *Session) Claim() error {
	s.mu.Lock()
	if !s.authenticated {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	if s.claim == nil || s.claim.claimed {
		s.mu.Unlock()
		return ErrNoClaimWindow
	}
	s.claim.claimed = true
	if s.claim.timer != nil {
		s.claim.timer.Stop()
	}
	seq := s.claim.seq
	s.claim.timer = s.clock.AfterFunc(ClaimAckDelay, func() { s.finishClaim(seq) })
	s.state.CurrencyClaimed++
	s.mu.Unlock()

	s.flush(true, true)
	return nil
}

// Draw spends the deck cost on one weighted card.
func (s *Session) Draw() (cards.Card, error) {
	s.mu.Lock()
	if !s.authenticated {
		s.mu.Unlock()
		return cards.Card{}, ErrNotAuthenticated
	}
	if s.deck == nil {
		s.mu.Unlock()
		return cards.Card{}, errors.New("no deck loaded")
	}
	if s.state.AvailableCurrency() < s.deck.Cost {
		s.mu.Unlock()
		return cards.Card{}, ErrInsufficientCurrency
	}
	card := s.deck.Draw(s.rng)
	s.state.CurrencySpent += s.deck.Cost
	s.state.Rewards = append(s.state.Rewards, card.ID)
	s.lastDraw = &card
	s.mu.Unlock()

	s.flush(true, true)
	return card, nil
}

// Reset wipes local progress back to the defaults and pushes it.
func (s *Session) Reset() error {
	s.mu.Lock()
	if !s.authenticated {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	s.state = progress.Default()
	s.lastDraw = nil
	s.closeClaimLocked()
	s.mu.Unlock()

	s.flush(true, true)
	return nil
}

// ToggleHideCurrency flips whether peers see this user's currency.
func (s *Session) ToggleHideCurrency() (bool, error) {
	s.mu.Lock()
	if !s.authenticated {
		s.mu.Unlock()
		return false, ErrNotAuthenticated
	}
	s.hideCurrency = !s.hideCurrency
	hidden := s.hideCurrency
	s.mu.Unlock()

	s.flush(true, true)
	return hidden, nil
}

// AnnounceNow sends a presence announcement outside the regular cadence,
// such as after the realtime channel reconnects.
func (s *Session) AnnounceNow() {
	s.flush(false, true)
}

// OnGlobalCounter applies a server counter value; lower values are ignored.
func (s *Session) OnGlobalCounter(value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value > s.globalCounter {
		s.globalCounter = value
	}
}

// OnRoster replaces the last roster seen from the server.
func (s *Session) OnRoster(roster []presence.Aggregated) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster = roster
}

// View snapshots the session for rendering.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		Identity:      s.identity,
		Authenticated: s.authenticated,
		Progress:      s.state.Clone(),
		Available:     s.state.AvailableCurrency(),
		GlobalCounter: s.globalCounter,
		Roster:        append([]presence.Aggregated(nil), s.roster...),
		HideCurrency:  s.hideCurrency,
		LastDraw:      s.lastDraw,
	}
	if s.activity != nil {
		v.Active = s.authenticated && s.activity.IsActive()
	}
	if s.claim != nil {
		v.ClaimOpen = true
		v.ClaimClaimed = s.claim.claimed
		if remaining := s.claim.deadline.Sub(s.clock.Now()); remaining > 0 && !s.claim.claimed {
			v.ClaimRemaining = remaining
		}
	}
	return v
}

func (s *Session) snapshotLocked() presence.Snapshot {
	available := s.state.AvailableCurrency()
	if available < 0 {
		available = 0
	}
	return presence.Snapshot{
		Identity:       s.identity,
		ElapsedSeconds: s.state.ElapsedSeconds,
		Currency:       available,
		RecentRewards:  s.state.RecentRewards(),
		HideCurrency:   s.hideCurrency,
	}
}

// flush resets the cadence counters for what it sends and hands the network
// calls to dispatch. Failures are logged; the next cycle retries.
func (s *Session) flush(doSync, doAnnounce bool) {
	if !doSync && !doAnnounce {
		return
	}
	s.mu.Lock()
	if !s.authenticated {
		s.mu.Unlock()
		return
	}
	if doSync {
		s.sinceSync = 0
	}
	if doAnnounce {
		s.sinceAnnounce = 0
	}
	identity, credential := s.identity, s.credential
	state := s.state.Clone()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if s.transport == nil {
		return
	}

	if doSync {
		s.dispatch(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			resp, err := s.transport.SyncProgress(ctx, identity, credential, state)
			if err != nil {
				s.logger.Warn().Err(err).Msg("progress sync failed")
				return
			}
			s.OnGlobalCounter(resp.GlobalCounter)
		})
	}
	if doAnnounce {
		s.dispatch(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			if err := s.transport.Announce(ctx, snap); err != nil {
				s.logger.Warn().Err(err).Msg("presence announcement failed")
			}
		})
	}
}
