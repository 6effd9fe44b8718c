// Package reputation computes the 0-100 trust score shown on profiles.
// Compute is pure: the same Stats and time always give the same result.
package reputation

import (
	"log"
	"math"
	"time"
)

const componentMax = 25.0

type Stats struct {
	AvgRating       float64
	RatingCount     int
	CompletedTx     int
	TotalTx         int
	DisputesAgainst int
	CreatedAt       time.Time
}

type Breakdown struct {
	RatingScore      int `json:"ratingScore"`
	TransactionScore int `json:"transactionScore"`
	AccountAgeScore  int `json:"accountAgeScore"`
	TrustScore       int `json:"trustScore"`
}

type StatsView struct {
	AvgRating             float64 `json:"avgRating"`
	RatingCount           int     `json:"ratingCount"`
	CompletedTransactions int     `json:"completedTransactions"`
	TotalTransactions     int     `json:"totalTransactions"`
	DisputesAgainst       int     `json:"disputesAgainst"`
}

type Reputation struct {
	Score     int       `json:"score"`
	Level     string    `json:"level"`
	Badge     string    `json:"badge"`
	Breakdown Breakdown `json:"breakdown"`
	Stats     StatsView `json:"stats"`
}

type level struct {
	min   int
	name  string
	badge string
}

// 上から順に判定
var levels = []level{
	{80, "Trusted Community Member", "gold"},
	{60, "Active Member", "silver"},
	{30, "Member", "bronze"},
	{0, "New Member", "bronze"},
}

func Compute(s Stats, now time.Time) Reputation {
	s = sanitize(s)

	rating := s.AvgRating / 5 * componentMax

	var completionRate float64
	if s.TotalTx > 0 {
		completionRate = float64(s.CompletedTx) / float64(s.TotalTx)
	}
	tx := completionRate*15 + math.Min(float64(s.TotalTx)/20, 1)*10

	var ageDays float64
	if !s.CreatedAt.IsZero() && now.After(s.CreatedAt) {
		ageDays = now.Sub(s.CreatedAt).Hours() / 24
	}
	age := math.Min(ageDays/180, 1) * componentMax

	trust := math.Max(componentMax-5*float64(s.DisputesAgainst), 0)

	total := clampScore(int(math.Round(rating+tx+age+trust)), s)

	lv := levelFor(total)
	return Reputation{
		Score: total,
		Level: lv.name,
		Badge: lv.badge,
		Breakdown: Breakdown{
			RatingScore:      int(math.Round(rating)),
			TransactionScore: int(math.Round(tx)),
			AccountAgeScore:  int(math.Round(age)),
			TrustScore:       int(math.Round(trust)),
		},
		Stats: StatsView{
			AvgRating:             math.Round(s.AvgRating*10) / 10,
			RatingCount:           s.RatingCount,
			CompletedTransactions: s.CompletedTx,
			TotalTransactions:     s.TotalTx,
			DisputesAgainst:       s.DisputesAgainst,
		},
	}
}

// clampScore keeps the total in 0..100. sanitize should make this a no-op.
func clampScore(total int, s Stats) int {
	if total >= 0 && total <= 100 {
		return total
	}
	log.Printf("[ERROR] reputation: score %d out of range for %+v", total, s)
	if total < 0 {
		return 0
	}
	return 100
}

// sanitize clamps inputs so every component stays within 0..25.
func sanitize(s Stats) Stats {
	if math.IsNaN(s.AvgRating) || s.AvgRating < 0 {
		s.AvgRating = 0
	}
	if s.AvgRating > 5 {
		s.AvgRating = 5
	}
	s.RatingCount = max(s.RatingCount, 0)
	s.TotalTx = max(s.TotalTx, 0)
	s.CompletedTx = min(max(s.CompletedTx, 0), s.TotalTx)
	s.DisputesAgainst = max(s.DisputesAgainst, 0)
	return s
}

func levelFor(score int) level {
	for _, lv := range levels {
		if score >= lv.min {
			return lv
		}
	}
	return levels[len(levels)-1]
}
