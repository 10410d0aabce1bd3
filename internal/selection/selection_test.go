package selection

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/shortlist-agent/internal/models"
)

var base = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func app(id string, final, ats int, minute int) models.Application {
	return models.Application{
		ID:         id,
		FinalScore: final,
		ATSScore:   ats,
		Status:     models.StatusApplied,
		CreatedAt:  base.Add(time.Duration(minute) * time.Minute),
	}
}

// TestRank_TieBreaking tests the ordering rules for equal final scores
func TestRank_TieBreaking(t *testing.T) {
	tests := []struct {
		name     string
		apps     []models.Application
		expected []string
	}{
		{
			name:     "Sort by final score (no ties)",
			apps:     []models.Application{app("alice", 70, 70, 0), app("bob", 90, 90, 1), app("carol", 80, 80, 2)},
			expected: []string{"bob", "carol", "alice"},
		},
		{
			name:     "Tie on final score, broken by ATS score",
			apps:     []models.Application{app("low-ats", 75, 60, 0), app("high-ats", 75, 80, 1)},
			expected: []string{"high-ats", "low-ats"},
		},
		{
			name:     "Tie on final and ATS, earliest application wins",
			apps:     []models.Application{app("late", 75, 75, 9), app("early", 75, 75, 1), app("middle", 75, 75, 5)},
			expected: []string{"early", "middle", "late"},
		},
		{
			name:     "Complete tie falls back to id",
			apps:     []models.Application{app("b", 60, 60, 0), app("a", 60, 60, 0)},
			expected: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IDs(Rank(tt.apps)))
		})
	}
}

// TestSelect_AtsTieBreak: equal final scores of 75 go to the higher ATS score first
func TestSelect_AtsTieBreak(t *testing.T) {
	result := Select([]models.Application{app("ats-60", 75, 60, 0), app("ats-80", 75, 80, 1)}, 2)

	require.Len(t, result.Shortlisted, 2)
	assert.Equal(t, "ats-80", result.Shortlisted[0].ID)
	assert.Equal(t, 1, result.Shortlisted[0].Ranking)
	assert.Equal(t, "ats-60", result.Shortlisted[1].ID)
	assert.Equal(t, 2, result.Shortlisted[1].Ranking)
}

func TestSelect_Partition(t *testing.T) {
	apps := []models.Application{app("a50", 50, 50, 2), app("a90", 90, 90, 0), app("a70", 70, 70, 1)}

	result := Select(apps, 2)

	assert.Equal(t, []string{"a90", "a70"}, IDs(result.Shortlisted))
	assert.Equal(t, []int{1, 2}, []int{result.Shortlisted[0].Ranking, result.Shortlisted[1].Ranking})
	assert.Equal(t, []string{"a50"}, IDs(result.Rejected))
	assert.Equal(t, 0, result.Rejected[0].Ranking)

	// input untouched
	assert.Equal(t, "a50", apps[0].ID)
	assert.Equal(t, 0, apps[1].Ranking)
}

func TestSelect_PoolSmallerThanShortlist(t *testing.T) {
	result := Select([]models.Application{app("only", 40, 40, 0)}, 5)
	assert.Len(t, result.Shortlisted, 1)
	assert.Empty(t, result.Rejected)

	empty := Select(nil, 5)
	assert.Empty(t, empty.Shortlisted)
	assert.Empty(t, empty.Rejected)
}

func TestSelect_StaleRankingCleared(t *testing.T) {
	stale := app("stale", 10, 10, 0)
	stale.Ranking = 4

	result := Select([]models.Application{app("top", 90, 90, 1), stale}, 1)
	assert.Equal(t, 0, result.Rejected[0].Ranking)
}

func randomPool(r *rand.Rand, n int) []models.Application {
	apps := make([]models.Application, n)
	for i := range apps {
		// narrow score ranges force plenty of ties
		apps[i] = app(fmt.Sprintf("app-%03d", i), 60+r.Intn(5), 60+r.Intn(3), r.Intn(4))
	}
	return apps
}

// TestSelect_Properties checks determinism and the capacity partition on random pools
func TestSelect_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		pool := randomPool(r, r.Intn(30))
		maxShortlist := 1 + r.Intn(10)

		first := Select(pool, maxShortlist)

		// same input, shuffled: identical output
		shuffled := append([]models.Application(nil), pool...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		second := Select(shuffled, maxShortlist)
		require.Equal(t, first, second)

		want := min(len(pool), maxShortlist)
		require.Len(t, first.Shortlisted, want)
		require.Len(t, first.Rejected, len(pool)-want)

		seen := make(map[string]bool, len(pool))
		for i, a := range first.Shortlisted {
			require.Equal(t, i+1, a.Ranking)
			seen[a.ID] = true
		}
		for _, a := range first.Rejected {
			require.False(t, seen[a.ID], "%s is both shortlisted and rejected", a.ID)
			seen[a.ID] = true
		}
		for _, a := range pool {
			require.True(t, seen[a.ID], "%s missing from the partition", a.ID)
		}
	}
}
