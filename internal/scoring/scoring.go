// Package scoring turns category penalties into category scores, an overall score and a grade.
// Every function here is pure.
package scoring

import (
	"math"
	"sort"

	"github.com/user/seo-audit-service/internal/entity"
)

const (
	MinScore = 0
	MaxScore = 100
)

// Weights is the relative weight of each category in the overall score.
type Weights map[entity.Category]float64

// GradeBand maps every score >= Min to Grade.
type GradeBand struct {
	Min   int
	Grade string
}

// Config is the deployment-level scoring configuration.
type Config struct {
	Weights Weights
	Bands   []GradeBand
}

// DefaultConfig is used when no configuration is supplied.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			entity.CategoryOnPage:      0.25,
			entity.CategoryContent:     0.15,
			entity.CategoryTechnical:   0.20,
			entity.CategoryLinks:       0.10,
			entity.CategoryPerformance: 0.20,
			entity.CategorySecurity:    0.10,
		},
		Bands: []GradeBand{{90, "A"}, {80, "B"}, {70, "C"}, {60, "D"}},
	}
}

// Clamp limits v to [MinScore, MaxScore].
func Clamp(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// CategoryScore starts a category at 100 and subtracts the penalty.
func CategoryScore(penalty int) int {
	return Clamp(MaxScore - penalty)
}

// Merge returns a copy of existing where only the owned categories are recomputed from
// penalties. Categories a phase does not own are carried over untouched, so applying the same
// phase twice yields the same map.
func Merge(existing map[entity.Category]int, owned []entity.Category, penalties map[entity.Category]int) map[entity.Category]int {
	out := make(map[entity.Category]int, len(existing)+len(owned))
	for c, s := range existing {
		out[c] = Clamp(s)
	}
	for _, c := range owned {
		out[c] = CategoryScore(penalties[c])
	}
	return out
}

// Overall is the weighted mean of the categories present in scores, rounded and clamped.
// Categories without a weight do not contribute.
func Overall(scores map[entity.Category]int, w Weights) int {
	var sum, total float64
	// Sorted iteration keeps float summation order, and therefore rounding, stable.
	cats := make([]string, 0, len(scores))
	for c := range scores {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	for _, c := range cats {
		weight := w[entity.Category(c)]
		if weight <= 0 {
			continue
		}
		sum += weight * float64(Clamp(scores[entity.Category(c)]))
		total += weight
	}
	if total == 0 {
		return MinScore
	}
	return Clamp(int(math.Round(sum / total)))
}

// Grade maps a score to the first band whose minimum it reaches, or "F".
func Grade(score int, bands []GradeBand) string {
	sorted := make([]GradeBand, len(bands))
	copy(sorted, bands)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min > sorted[j].Min })
	for _, b := range sorted {
		if score >= b.Min {
			return b.Grade
		}
	}
	return "F"
}

// CompositePerformance blends mobile and desktop averages 70/30. With one side only that side
// is returned; with neither the second value is false.
func CompositePerformance(mobile, desktop *float64) (float64, bool) {
	switch {
	case mobile != nil && desktop != nil:
		return 0.7*(*mobile) + 0.3*(*desktop), true
	case mobile != nil:
		return *mobile, true
	case desktop != nil:
		return *desktop, true
	}
	return 0, false
}

// Average returns the mean of values, or nil for an empty slice.
func Average(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))
	return &avg
}

// Apply merges a phase result into the audit's score fields and recomputes overall score and grade.
func (c Config) Apply(a *entity.Audit, res *entity.PhaseResult) {
	a.CategoryScores = Merge(a.CategoryScores, res.Phase.Categories(), res.Penalties)

	counts := make(map[entity.Category]int, len(a.IssueCounts))
	for k, v := range a.IssueCounts {
		counts[k] = v
	}
	for _, cat := range res.Phase.Categories() {
		counts[cat] = 0
	}
	for _, issue := range res.Issues {
		counts[issue.Category]++
	}
	a.IssueCounts = counts

	overall := Overall(a.CategoryScores, c.Weights)
	a.OverallScore = &overall
	a.OverallGrade = Grade(overall, c.Bands)
}
