package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/seo-audit-service/internal/entity"
)

func ptr(v float64) *float64 { return &v }

func TestCategoryScore_Clamped(t *testing.T) {
	assert.Equal(t, 100, CategoryScore(0))
	assert.Equal(t, 80, CategoryScore(20))
	assert.Equal(t, 0, CategoryScore(250))
	assert.Equal(t, 100, CategoryScore(-10))
}

func TestGrade_Deterministic(t *testing.T) {
	bands := DefaultConfig().Bands
	cases := map[int]string{100: "A", 90: "A", 89: "B", 80: "B", 79: "C", 70: "C", 69: "D", 60: "D", 59: "F", 0: "F"}
	for score, want := range cases {
		assert.Equal(t, want, Grade(score, bands), "score %d", score)
		assert.Equal(t, Grade(score, bands), Grade(score, bands))
	}
}

func TestGrade_UnsortedBands(t *testing.T) {
	bands := []GradeBand{{60, "D"}, {90, "A"}, {75, "B"}}
	assert.Equal(t, "A", Grade(95, bands))
	assert.Equal(t, "B", Grade(80, bands))
	assert.Equal(t, "D", Grade(61, bands))
	assert.Equal(t, "F", Grade(10, bands))
}

func TestOverall_WeightedMeanOfPresentCategories(t *testing.T) {
	w := Weights{entity.CategoryOnPage: 0.25, entity.CategoryPerformance: 0.20, entity.CategorySecurity: 0.10}

	assert.Equal(t, 0, Overall(nil, w))
	assert.Equal(t, 80, Overall(map[entity.Category]int{entity.CategoryOnPage: 80}, w))
	// (0.25*80 + 0.20*70) / 0.45 = 75.56
	assert.Equal(t, 76, Overall(map[entity.Category]int{entity.CategoryOnPage: 80, entity.CategoryPerformance: 70}, w))
}

func TestOverall_AlwaysInRange(t *testing.T) {
	w := DefaultConfig().Weights
	for _, v := range []int{-500, -1, 0, 50, 100, 101, 9999} {
		got := Overall(map[entity.Category]int{entity.CategoryOnPage: v, entity.CategoryLinks: v}, w)
		assert.GreaterOrEqual(t, got, 0)
		assert.LessOrEqual(t, got, 100)
	}
}

func TestCompositePerformance(t *testing.T) {
	v, ok := CompositePerformance(ptr(80), ptr(60))
	require.True(t, ok)
	assert.InDelta(t, 74.0, v, 1e-9)

	v, ok = CompositePerformance(ptr(55), nil)
	require.True(t, ok)
	assert.InDelta(t, 55.0, v, 1e-9)

	v, ok = CompositePerformance(nil, ptr(91))
	require.True(t, ok)
	assert.InDelta(t, 91.0, v, 1e-9)

	_, ok = CompositePerformance(nil, nil)
	assert.False(t, ok)
}

func TestAverage(t *testing.T) {
	assert.Nil(t, Average(nil))
	assert.InDelta(t, 70.0, *Average([]float64{60, 80}), 1e-9)
}

func TestMerge_DoesNotClobberOtherCategories(t *testing.T) {
	existing := map[entity.Category]int{entity.CategoryOnPage: 80, entity.CategoryContent: 90}
	merged := Merge(existing, entity.PhasePerformance.Categories(), map[entity.Category]int{
		entity.CategoryPerformance: 30,
		entity.CategoryOnPage:      100, // not owned by the performance phase
	})

	assert.Equal(t, map[entity.Category]int{
		entity.CategoryOnPage:      80,
		entity.CategoryContent:     90,
		entity.CategoryPerformance: 70,
	}, merged)
	assert.Equal(t, 80, existing[entity.CategoryOnPage])
	assert.NotContains(t, existing, entity.CategoryPerformance)
}

func TestApply_IncrementalMergeAcrossPhases(t *testing.T) {
	cfg := Config{
		Weights: Weights{entity.CategoryOnPage: 0.5, entity.CategoryPerformance: 0.5},
		Bands:   DefaultConfig().Bands,
	}
	audit := &entity.Audit{}

	cfg.Apply(audit, &entity.PhaseResult{
		Phase:     entity.PhaseContent,
		Penalties: map[entity.Category]int{entity.CategoryOnPage: 20},
		Issues:    []entity.Issue{{Code: "missing_h1", Category: entity.CategoryOnPage}},
	})
	require.NotNil(t, audit.OverallScore)
	assert.Equal(t, 80, audit.CategoryScores[entity.CategoryOnPage])
	assert.Equal(t, 100, audit.CategoryScores[entity.CategoryContent])

	perf := &entity.PhaseResult{
		Phase:     entity.PhasePerformance,
		Penalties: map[entity.Category]int{entity.CategoryPerformance: 30},
	}
	cfg.Apply(audit, perf)

	assert.Equal(t, 80, audit.CategoryScores[entity.CategoryOnPage])
	assert.Equal(t, 70, audit.CategoryScores[entity.CategoryPerformance])
	assert.Equal(t, 75, *audit.OverallScore)
	assert.Equal(t, "C", audit.OverallGrade)
	assert.Equal(t, 1, audit.IssueCounts[entity.CategoryOnPage])

	before := map[entity.Category]int{}
	for k, v := range audit.CategoryScores {
		before[k] = v
	}
	cfg.Apply(audit, perf)
	assert.Equal(t, before, audit.CategoryScores)
	assert.Equal(t, 75, *audit.OverallScore)
}
