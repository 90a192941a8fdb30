package cards

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDeckLoads(t *testing.T) {
	d, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.Cost)
	assert.NotEmpty(t, d.Cards)
	assert.Equal(t, "Orrery", d.Name("orrery"))
	assert.Equal(t, "unknown", d.Name("unknown"))
}

func TestParseValidation(t *testing.T) {
	tests := map[string]string{
		"no cards":     "cost: 1\ncards: []\n",
		"zero weight":  "cards:\n  - id: a\n    weight: 0\n",
		"missing id":   "cards:\n  - name: A\n    weight: 1\n",
		"duplicate id": "cards:\n  - id: a\n    weight: 1\n  - id: a\n    weight: 2\n",
		"bad cost":     "cost: -2\ncards:\n  - id: a\n    weight: 1\n",
		"not yaml":     "cards: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidDeck)
		})
	}
}

func TestParseDefaultsCostAndName(t *testing.T) {
	d, err := Parse([]byte("cards:\n  - id: a\n    weight: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.Cost)
	assert.Equal(t, "a", d.Cards[0].Name)
}

func TestDrawFollowsWeights(t *testing.T) {
	d, err := Parse([]byte("cards:\n  - id: common\n    weight: 9\n  - id: rare\n    weight: 1\n"))
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))
	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		counts[d.Draw(rng).ID]++
	}
	assert.InDelta(t, 9000, counts["common"], 400)
	assert.InDelta(t, 1000, counts["rare"], 400)
}

func TestDrawSingleCard(t *testing.T) {
	d, err := Parse([]byte("cards:\n  - id: only\n    weight: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, "only", d.Draw(nil).ID)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cost: 3\ncards:\n  - id: x\n    weight: 1\n"), 0o600))
	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.Cost)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
