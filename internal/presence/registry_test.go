package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertIgnoresMissingIdentity(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Upsert("c1", Snapshot{Identity: "  "}))
	assert.False(t, r.Upsert("", Snapshot{Identity: "alice"}))
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Aggregate())
}

func TestUpsertOverwritesSameConnection(t *testing.T) {
	r := NewRegistry()
	r.Upsert("c1", Snapshot{Identity: "alice", ElapsedSeconds: 10})
	r.Upsert("c1", Snapshot{Identity: "alice", ElapsedSeconds: 4})
	assert.Equal(t, 1, r.Len())

	roster := r.Aggregate()
	require.Len(t, roster, 1)
	assert.Equal(t, int64(4), roster[0].ElapsedSeconds)
}

func TestAggregateTakesMaxAcrossConnections(t *testing.T) {
	r := NewRegistry()
	r.Upsert("c1", Snapshot{Identity: "alice", ElapsedSeconds: 10, Currency: 7})
	r.Upsert("c2", Snapshot{Identity: "alice", ElapsedSeconds: 25, Currency: 3})

	roster := r.Aggregate()
	require.Len(t, roster, 1)
	assert.Equal(t, "alice", roster[0].Identity)
	assert.Equal(t, int64(25), roster[0].ElapsedSeconds)
	assert.Equal(t, int64(7), roster[0].Currency)
}

func TestAggregateHideCurrencyIsAny(t *testing.T) {
	r := NewRegistry()
	r.Upsert("c1", Snapshot{Identity: "alice"})
	r.Upsert("c2", Snapshot{Identity: "alice", HideCurrency: true})
	r.Upsert("c3", Snapshot{Identity: "bob"})

	roster := r.Aggregate()
	require.Len(t, roster, 2)
	assert.True(t, roster[0].HideCurrency)
	assert.False(t, roster[1].HideCurrency)

	r.Remove("c2")
	roster = r.Aggregate()
	assert.False(t, roster[0].HideCurrency)
}

func TestAggregateRecentRewardsFirstNonEmpty(t *testing.T) {
	r := NewRegistry()
	r.Upsert("c1", Snapshot{Identity: "alice"})
	r.Upsert("c2", Snapshot{Identity: "alice", RecentRewards: []string{"a", "b", "c", "d"}})
	r.Upsert("c3", Snapshot{Identity: "alice", RecentRewards: []string{"z"}})

	roster := r.Aggregate()
	require.Len(t, roster, 1)
	assert.Equal(t, []string{"b", "c", "d"}, roster[0].RecentRewards)
}

func TestAggregateOrderFollowsFirstSeen(t *testing.T) {
	r := NewRegistry()
	r.Upsert("c1", Snapshot{Identity: "carol"})
	r.Upsert("c2", Snapshot{Identity: "alice"})
	r.Upsert("c3", Snapshot{Identity: "carol"})
	r.Upsert("c4", Snapshot{Identity: "bob"})

	var names []string
	for _, entry := range r.Aggregate() {
		names = append(names, entry.Identity)
	}
	assert.Equal(t, []string{"carol", "alice", "bob"}, names)
}

func TestRemoveOnlyConnectionDropsIdentity(t *testing.T) {
	r := NewRegistry()
	r.Upsert("c1", Snapshot{Identity: "alice", ElapsedSeconds: 10})
	r.Upsert("c2", Snapshot{Identity: "bob"})
	r.Upsert("c3", Snapshot{Identity: "alice", ElapsedSeconds: 30})

	assert.True(t, r.Remove("c3"))
	roster := r.Aggregate()
	require.Len(t, roster, 2)
	assert.Equal(t, int64(10), roster[0].ElapsedSeconds)

	assert.True(t, r.Remove("c1"))
	assert.False(t, r.Remove("c1"))
	roster = r.Aggregate()
	require.Len(t, roster, 1)
	assert.Equal(t, "bob", roster[0].Identity)
}

func TestAggregateReturnsCopies(t *testing.T) {
	r := NewRegistry()
	r.Upsert("c1", Snapshot{Identity: "alice", RecentRewards: []string{"a"}})
	roster := r.Aggregate()
	roster[0].RecentRewards[0] = "mutated"
	assert.Equal(t, []string{"a"}, r.Aggregate()[0].RecentRewards)
}
