package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"bookshare-backend/internal/geo"
	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/db"
	"bookshare-backend/internal/platform/httpx"
	"bookshare-backend/internal/platform/ids"
	"bookshare-backend/internal/reputation"
)

type Service struct {
	store *Store
	clock ids.Clock
}

func NewService(d *db.DB) *Service {
	return &Service{store: NewStore(d), clock: ids.RealClock{}}
}

// GET /users/me
func (s *Service) Me(ctx context.Context, id string) (MeResponse, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return MeResponse{}, err
	}
	rep, err := s.Reputation(ctx, id)
	if err != nil {
		return MeResponse{}, err
	}
	return toMe(u, rep), nil
}

// PUT /users/me
func (s *Service) UpdateMe(ctx context.Context, id string, in UpdateMeRequest) (MeResponse, error) {
	if in.Name == nil && in.Phone == nil && in.Latitude == nil && in.Longitude == nil && in.Address == nil {
		return MeResponse{}, apierr.Invalid("No valid fields to update")
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return MeResponse{}, apierr.Invalid("name cannot be empty")
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return MeResponse{}, apierr.Invalid("latitude and longitude must be provided together")
	}
	if in.Latitude != nil && !geo.ValidCoordinates(*in.Latitude, *in.Longitude) {
		return MeResponse{}, apierr.Invalid("Invalid coordinates")
	}

	u, err := s.store.ExecUpdate(ctx, id, func(u *User) error {
		if in.Name != nil {
			u.Name = strings.TrimSpace(*in.Name)
		}
		if in.Phone != nil {
			u.Phone = nullString(*in.Phone)
		}
		if in.Address != nil {
			u.DefaultAddress = nullString(*in.Address)
		}
		if in.Latitude != nil {
			u.DefaultLatitude = sql.NullFloat64{Float64: *in.Latitude, Valid: true}
			u.DefaultLongitude = sql.NullFloat64{Float64: *in.Longitude, Valid: true}
		}
		return nil
	})
	if err != nil {
		return MeResponse{}, err
	}
	rep, err := s.Reputation(ctx, id)
	if err != nil {
		return MeResponse{}, err
	}
	return toMe(u, rep), nil
}

// GET /users/:id
func (s *Service) Public(ctx context.Context, id string) (PublicProfile, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return PublicProfile{}, err
	}
	rep, err := s.Reputation(ctx, id)
	if err != nil {
		return PublicProfile{}, err
	}
	returns, err := s.store.BorrowerReturns(ctx, id)
	if err != nil {
		return PublicProfile{}, err
	}
	return PublicProfile{
		ID:                     u.ID,
		Name:                   u.Name,
		AvgRating:              u.AvgRating,
		TotalRatings:           u.TotalRatings,
		CompletedTransactions:  u.CompletedTransactions,
		OnTimeReturnPercentage: onTimePercentage(returns),
		CreatedAt:              u.CreatedAt,
		Reputation:             rep,
	}, nil
}

// Reputation gathers the user's facts and scores them.
func (s *Service) Reputation(ctx context.Context, id string) (reputation.Reputation, error) {
	st, err := s.store.ReputationStats(ctx, id)
	if err != nil {
		return reputation.Reputation{}, err
	}
	return reputation.Compute(st, s.clock.Now()), nil
}

// Refresh stores the current score of each user in users.reputation_score.
func (s *Service) Refresh(ctx context.Context, userIDs ...string) error {
	var errs []error
	for _, id := range userIDs {
		rep, err := s.Reputation(ctx, id)
		if err == nil {
			err = s.store.SetReputationScore(ctx, id, rep.Score)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// RecomputeAggregates rebuilds avg_rating, total_ratings and completed_transactions
// from the underlying rows, then refreshes the score.
func (s *Service) RecomputeAggregates(ctx context.Context, id string) (MeResponse, error) {
	if err := s.store.ExecRecomputeAggregates(ctx, id); err != nil {
		return MeResponse{}, err
	}
	if err := s.Refresh(ctx, id); err != nil {
		return MeResponse{}, err
	}
	return s.Me(ctx, id)
}

// GET /users/:id/ratings
func (s *Service) Ratings(ctx context.Context, id string, p httpx.Page) (RatingList, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return RatingList{}, err
	}
	p = p.Normalize()
	rows, total, err := s.store.ReceivedRatings(ctx, id, p)
	if err != nil {
		return RatingList{}, err
	}
	items := make([]RatingItem, 0, len(rows))
	for _, r := range rows {
		it := RatingItem{
			ID:            r.ID,
			TransactionID: r.TransactionID,
			RaterID:       r.RaterID,
			RaterName:     r.RaterName,
			Score:         r.Score,
			CreatedAt:     r.CreatedAt,
		}
		if r.Comment.Valid {
			c := r.Comment.String
			it.Comment = &c
		}
		items = append(items, it)
	}
	return RatingList{Items: items, Total: total, NextOffset: p.NextOffset(total)}, nil
}

// onTimePercentage: 返却日時が期限以内の割合。実績なしは 100
func onTimePercentage(rs []returnRecord) int {
	if len(rs) == 0 {
		return 100
	}
	onTime := 0
	for _, r := range rs {
		if r.ReturnedAt.Valid && r.DueDate.Valid && !r.ReturnedAt.Time.After(r.DueDate.Time) {
			onTime++
		}
	}
	return int(math.Round(float64(onTime) / float64(len(rs)) * 100))
}

func toMe(u *User, rep reputation.Reputation) MeResponse {
	m := MeResponse{
		ID:                    u.ID,
		Email:                 u.Email,
		Name:                  u.Name,
		Role:                  u.Role,
		AvgRating:             u.AvgRating,
		TotalRatings:          u.TotalRatings,
		CompletedTransactions: u.CompletedTransactions,
		Status:                u.Status,
		CreatedAt:             u.CreatedAt,
		Reputation:            rep,
	}
	if u.Phone.Valid {
		v := u.Phone.String
		m.Phone = &v
	}
	if u.DefaultAddress.Valid {
		v := u.DefaultAddress.String
		m.DefaultAddress = &v
	}
	if u.DefaultLatitude.Valid && u.DefaultLongitude.Valid {
		la, lo := u.DefaultLatitude.Float64, u.DefaultLongitude.Float64
		m.DefaultLatitude, m.DefaultLongitude = &la, &lo
	}
	return m
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
