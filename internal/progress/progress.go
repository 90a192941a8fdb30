// Package progress holds the per-account accrual state shared by the server
// and the client, plus the sanitize step applied to untrusted submissions.
package progress

import (
	"errors"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

const (
	// SecondsPerCoin is how much active time earns one unit of base allowance.
	SecondsPerCoin = 60
	// RewardInterval is the elapsed-time spacing between reward opportunities.
	RewardInterval = 120
	// RecentRewardsLimit caps the rewards carried in a presence snapshot.
	RecentRewardsLimit = 3

	// maxCoerced keeps coerced values inside the range a float64 represents exactly.
	maxCoerced = 1 << 53
)

// ErrMissing is returned by Sanitize when no progress was submitted at all.
var ErrMissing = errors.New("progress is required")

// ErrMalformed is returned by Sanitize when the submission is not a JSON object.
var ErrMalformed = errors.New("progress must be an object")

// State is an account's accrual data.
type State struct {
	ElapsedSeconds       int64    `json:"elapsedSeconds"`
	CurrencySpent        int64    `json:"currencySpent"`
	Rewards              []string `json:"rewards"`
	CurrencyClaimed      int64    `json:"currencyClaimed"`
	RewardThresholdIndex int64    `json:"rewardThresholdIndex"`
}

// Default returns a fresh all-zero state with an empty (non-nil) rewards list.
func Default() State {
	return State{Rewards: []string{}}
}

// Clone returns a deep copy so callers can mutate rewards freely.
func (s State) Clone() State {
	out := s
	out.Rewards = make([]string, len(s.Rewards))
	copy(out.Rewards, s.Rewards)
	return out
}

// BaseAllowance is the currency earned from elapsed time alone.
func (s State) BaseAllowance() int64 {
	return s.ElapsedSeconds / SecondsPerCoin
}

// AvailableCurrency is base allowance plus claimed bonuses minus spending. It
// may go negative for misbehaving clients; nothing here clamps it.
func (s State) AvailableCurrency() int64 {
	return s.BaseAllowance() + s.CurrencyClaimed - s.CurrencySpent
}

// ThresholdIndex is the reward boundary the current elapsed time has reached.
func (s State) ThresholdIndex() int64 {
	return s.ElapsedSeconds / RewardInterval
}

// RecentRewards returns the last RecentRewardsLimit rewards, oldest first.
func (s State) RecentRewards() []string {
	return LastN(s.Rewards, RecentRewardsLimit)
}

// LastN returns a copy of the trailing n entries of list.
func LastN(list []string, n int) []string {
	if len(list) > n {
		list = list[len(list)-n:]
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// Sanitize turns a raw submission into a typed State. An absent or null
// submission is ErrMissing and a non-object is ErrMalformed; inside an object
// every numeric field is coerced to a non-negative integer (invalid or missing
// becomes 0) and rewards to a list of strings (invalid becomes empty).
func Sanitize(raw json.RawMessage) (State, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return State{}, ErrMissing
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return State{}, ErrMalformed
	}
	if fields == nil {
		return State{}, ErrMissing
	}
	return State{
		ElapsedSeconds:       coerceCount(fields["elapsedSeconds"]),
		CurrencySpent:        coerceCount(fields["currencySpent"]),
		Rewards:              coerceRewards(fields["rewards"]),
		CurrencyClaimed:      coerceCount(fields["currencyClaimed"]),
		RewardThresholdIndex: coerceCount(fields["rewardThresholdIndex"]),
	}, nil
}

func coerceCount(value any) int64 {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		f = parsed
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	if f >= maxCoerced {
		return maxCoerced
	}
	return int64(math.Floor(f))
}

func coerceRewards(value any) []string {
	list, ok := value.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if id, ok := item.(string); ok && id != "" {
			out = append(out, id)
		}
	}
	return out
}
