package scoring

import (
	"context"
	"math"
	"sort"
)

const (
	answerMin    = 1
	answerMax    = 5
	neutralScore = 50.0
	maxReasons   = 3
	reasonPrefix = "same answer: "
)

// Local is the deterministic heuristic: for every question both users
// answered, similarity is 1 - |a-b|/(max-min); the score is the mean
// similarity scaled to 0..100. No shared answers scores neutral.
type Local struct{}

// NewLocal returns the local scorer.
func NewLocal() *Local { return &Local{} }

// Score never fails.
func (l *Local) Score(_ context.Context, user Profile, candidates []Profile) ([]Result, error) {
	out := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Compatibility(user, c))
	}
	return out, nil
}

// Compatibility scores one pair.
func Compatibility(a, b Profile) Result {
	keys := make([]string, 0, len(a.Answers))
	for k := range a.Answers {
		if _, ok := b.Answers[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	res := Result{UserID: b.UserID, Score: neutralScore}
	if len(keys) == 0 {
		return res
	}

	var sum float64
	for _, k := range keys {
		x, y := clamp(a.Answers[k]), clamp(b.Answers[k])
		sum += 1 - math.Abs(float64(x-y))/float64(answerMax-answerMin)
		if x == y && len(res.Reasons) < maxReasons {
			res.Reasons = append(res.Reasons, reasonPrefix+k)
		}
	}
	res.Score = math.Round(sum/float64(len(keys))*1000) / 10
	return res
}

func clamp(v int) int {
	switch {
	case v < answerMin:
		return answerMin
	case v > answerMax:
		return answerMax
	}
	return v
}
