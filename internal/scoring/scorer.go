// Package scoring ranks candidate profiles against a user.
//
// Two strategies exist: Local, a pure heuristic over personality answers,
// and Remote, an HTTP delegate. Fallback composes them and owns the
// timeout and the fallback policy.
package scoring

import (
	"context"
	"sort"

	"github.com/oggyb/muzz-daily/internal/db"
)

// Profile is the slice of a user the scorers look at.
type Profile struct {
	UserID  uint64     `json:"userId"`
	Answers db.Answers `json:"answers"`
}

// Result is one candidate's score, 0..100.
type Result struct {
	UserID  uint64   `json:"userId"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons,omitempty"`
}

// Scorer scores every candidate against user. Implementations return one
// Result per candidate, in any order.
type Scorer interface {
	Score(ctx context.Context, user Profile, candidates []Profile) ([]Result, error)
}

// ProfileOf extracts the scoring view of a user row.
func ProfileOf(u db.User) Profile {
	return Profile{UserID: u.ID, Answers: u.Answers.Data()}
}

// Rank sorts results by score descending, ties by user id ascending,
// and keeps at most n.
func Rank(results []Result, n int) []Result {
	out := append([]Result(nil), results...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID < out[j].UserID
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
