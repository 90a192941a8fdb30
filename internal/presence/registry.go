// Package presence tracks what each live connection last reported and folds
// those snapshots into one record per identity.
package presence

import (
	"strings"
	"sync"

	"timekeeper/internal/progress"
)

// Snapshot is one connection's self-reported status.
type Snapshot struct {
	Identity       string   `json:"identity"`
	ElapsedSeconds int64    `json:"elapsedSeconds"`
	Currency       int64    `json:"currency"`
	RecentRewards  []string `json:"recentRewards"`
	HideCurrency   bool     `json:"hideCurrency"`
}

// Aggregated is the merge of every live snapshot sharing an identity.
type Aggregated struct {
	Identity       string   `json:"identity"`
	ElapsedSeconds int64    `json:"elapsedSeconds"`
	Currency       int64    `json:"currency"`
	RecentRewards  []string `json:"recentRewards"`
	HideCurrency   bool     `json:"hideCurrency"`
}

// Registry is empty at process start and never persisted.
type Registry struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
	order     []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{snapshots: make(map[string]Snapshot)}
}

// Upsert stores snap as connectionID's latest snapshot. Snapshots without an
// identity are ignored and Upsert reports false.
func (r *Registry) Upsert(connectionID string, snap Snapshot) bool {
	snap.Identity = strings.TrimSpace(snap.Identity)
	if connectionID == "" || snap.Identity == "" {
		return false
	}
	snap.RecentRewards = progress.LastN(snap.RecentRewards, progress.RecentRewardsLimit)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.snapshots[connectionID]; !exists {
		r.order = append(r.order, connectionID)
	}
	r.snapshots[connectionID] = snap
	return true
}

// Remove drops connectionID's snapshot and reports whether one existed.
func (r *Registry) Remove(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.snapshots[connectionID]; !exists {
		return false
	}
	delete(r.snapshots, connectionID)
	for i, id := range r.order {
		if id == connectionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Len is the number of connections with a snapshot.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

// Aggregate returns one record per identity in first-seen order over
// connection insertion order. elapsedSeconds and currency take the maximum,
// hideCurrency is true if any connection asked for it, and recentRewards comes
// from the first connection reporting a non-empty list.
func (r *Registry) Aggregate() []Aggregated {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Aggregated, 0, len(r.order))
	position := make(map[string]int, len(r.order))
	for _, connectionID := range r.order {
		snap := r.snapshots[connectionID]
		i, seen := position[snap.Identity]
		if !seen {
			position[snap.Identity] = len(out)
			out = append(out, Aggregated{
				Identity:       snap.Identity,
				ElapsedSeconds: snap.ElapsedSeconds,
				Currency:       snap.Currency,
				RecentRewards:  copyRewards(snap.RecentRewards),
				HideCurrency:   snap.HideCurrency,
			})
			continue
		}
		agg := &out[i]
		if snap.ElapsedSeconds > agg.ElapsedSeconds {
			agg.ElapsedSeconds = snap.ElapsedSeconds
		}
		if snap.Currency > agg.Currency {
			agg.Currency = snap.Currency
		}
		agg.HideCurrency = agg.HideCurrency || snap.HideCurrency
		if len(agg.RecentRewards) == 0 && len(snap.RecentRewards) > 0 {
			agg.RecentRewards = copyRewards(snap.RecentRewards)
		}
	}
	return out
}

func copyRewards(list []string) []string {
	out := make([]string, len(list))
	copy(out, list)
	return out
}
