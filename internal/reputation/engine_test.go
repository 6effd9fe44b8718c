package reputation

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func TestNewUserScoresTrustOnly(t *testing.T) {
	r := Compute(Stats{CreatedAt: now}, now)
	assert.Equal(t, 25, r.Score)
	assert.Equal(t, Breakdown{TrustScore: 25}, r.Breakdown)
	assert.Equal(t, "New Member", r.Level)
	assert.Equal(t, "bronze", r.Badge)
}

func TestFullScore(t *testing.T) {
	r := Compute(Stats{
		AvgRating:   5,
		RatingCount: 30,
		CompletedTx: 40,
		TotalTx:     40,
		CreatedAt:   now.AddDate(-1, 0, 0),
	}, now)
	assert.Equal(t, 100, r.Score)
	assert.Equal(t, "Trusted Community Member", r.Level)
	assert.Equal(t, "gold", r.Badge)
}

func TestComponents(t *testing.T) {
	r := Compute(Stats{
		AvgRating:       4.26,
		RatingCount:     5,
		CompletedTx:     6,
		TotalTx:         10,
		DisputesAgainst: 2,
		CreatedAt:       now.AddDate(0, 0, -90),
	}, now)

	// 4.26/5*25 = 21.3, 0.6*15 + 0.5*10 = 14, 90/180*25 = 12.5, 25-10 = 15
	assert.Equal(t, 21, r.Breakdown.RatingScore)
	assert.Equal(t, 14, r.Breakdown.TransactionScore)
	assert.Equal(t, 13, r.Breakdown.AccountAgeScore)
	assert.Equal(t, 15, r.Breakdown.TrustScore)
	assert.Equal(t, int(math.Round(21.3+14+12.5+15)), r.Score)
	assert.Equal(t, "Active Member", r.Level)
	assert.Equal(t, 4.3, r.Stats.AvgRating)
}

func TestLevels(t *testing.T) {
	cases := []struct {
		score int
		name  string
		badge string
	}{
		{100, "Trusted Community Member", "gold"},
		{80, "Trusted Community Member", "gold"},
		{79, "Active Member", "silver"},
		{60, "Active Member", "silver"},
		{59, "Member", "bronze"},
		{30, "Member", "bronze"},
		{29, "New Member", "bronze"},
		{0, "New Member", "bronze"},
	}
	for _, tc := range cases {
		lv := levelFor(tc.score)
		assert.Equal(t, tc.name, lv.name, "score %d", tc.score)
		assert.Equal(t, tc.badge, lv.badge, "score %d", tc.score)
	}
}

func TestPathologicalInputsStayInRange(t *testing.T) {
	inputs := []Stats{
		{AvgRating: 9, CompletedTx: 50, TotalTx: 10, CreatedAt: now.AddDate(-10, 0, 0)},
		{AvgRating: -3, CompletedTx: -1, TotalTx: -5, DisputesAgainst: -4},
		{AvgRating: math.NaN(), DisputesAgainst: 100, CreatedAt: now.Add(24 * time.Hour)},
	}
	for _, s := range inputs {
		r := Compute(s, now)
		assert.GreaterOrEqual(t, r.Score, 0)
		assert.LessOrEqual(t, r.Score, 100)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		s := Stats{
			AvgRating:       rng.Float64()*12 - 3,
			CompletedTx:     rng.Intn(200) - 20,
			TotalTx:         rng.Intn(200) - 20,
			DisputesAgainst: rng.Intn(12) - 2,
			CreatedAt:       now.AddDate(0, 0, -rng.Intn(2000)+100),
		}
		r := Compute(s, now)
		assert.GreaterOrEqual(t, r.Score, 0)
		assert.LessOrEqual(t, r.Score, 100)
	}
}

func TestDeterministic(t *testing.T) {
	s := Stats{AvgRating: 3.7, RatingCount: 3, CompletedTx: 2, TotalTx: 3, CreatedAt: now.AddDate(0, -2, 0)}
	assert.Equal(t, Compute(s, now), Compute(s, now))
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0, clampScore(-3, Stats{}))
	assert.Equal(t, 100, clampScore(140, Stats{}))
	assert.Equal(t, 57, clampScore(57, Stats{}))
}
