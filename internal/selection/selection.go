// Package selection ranks applications and splits them into a shortlist and
// a rejection set.
package selection

import (
	"sort"

	"github.com/fmuoria/shortlist-agent/internal/models"
)

// Result is the partition produced by Select
type Result struct {
	Shortlisted []models.Application
	Rejected    []models.Application
}

// Rank returns a sorted copy of apps: highest FinalScore first, then highest
// ATSScore, then the earliest submission, then application id
func Rank(apps []models.Application) []models.Application {
	ranked := make([]models.Application, len(apps))
	copy(ranked, apps)

	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j])
	})
	return ranked
}

// Select ranks apps and keeps the top maxShortlist. Shortlisted applications
// get Ranking 1..N in order; rejected ones get 0. The input is not modified.
func Select(apps []models.Application, maxShortlist int) Result {
	ranked := Rank(apps)

	n := maxShortlist
	if n < 0 {
		n = 0
	}
	if n > len(ranked) {
		n = len(ranked)
	}

	result := Result{
		Shortlisted: make([]models.Application, 0, n),
		Rejected:    make([]models.Application, 0, len(ranked)-n),
	}
	for i, app := range ranked {
		if i < n {
			app.Ranking = i + 1
			result.Shortlisted = append(result.Shortlisted, app)
		} else {
			app.Ranking = 0
			result.Rejected = append(result.Rejected, app)
		}
	}
	return result
}

// IDs returns the ids of apps in order
func IDs(apps []models.Application) []string {
	ids := make([]string, len(apps))
	for i, app := range apps {
		ids[i] = app.ID
	}
	return ids
}

func less(a, b models.Application) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	if a.ATSScore != b.ATSScore {
		return a.ATSScore > b.ATSScore
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
