package lending

import (
	"context"
	"database/sql"
	"log"
	"strings"
	"time"

	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/db"
	"bookshare-backend/internal/platform/httpx"
	"bookshare-backend/internal/platform/ids"
)

// ReputationRefresher recomputes the cached reputation of the given users.
// It runs after commit; a failure is logged and never undoes the loan change.
type ReputationRefresher interface {
	Refresh(ctx context.Context, userIDs ...string) error
}

type Service struct {
	store *Store
	clock ids.Clock
	id    ids.IDGen
	rep   ReputationRefresher
}

func NewService(d *db.DB, rep ReputationRefresher) *Service {
	return &Service{
		store: NewStore(d),
		clock: ids.RealClock{},
		id:    ids.NewULIDGen(),
		rep:   rep,
	}
}

// POST /transactions
func (s *Service) Request(ctx context.Context, borrowerID string, in CreateTransactionRequest) (TransactionResponse, error) {
	bookID := strings.TrimSpace(in.BookID)
	if bookID == "" {
		return TransactionResponse{}, apierr.Invalid("book_id is required")
	}
	now := s.clock.Now()
	t := &Transaction{
		ID:         s.id.NewULID(now),
		BookID:     bookID,
		BorrowerID: borrowerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.Message != nil && strings.TrimSpace(*in.Message) != "" {
		t.Message = sql.NullString{String: strings.TrimSpace(*in.Message), Valid: true}
	}
	if err := s.store.ExecRequest(ctx, t); err != nil {
		return TransactionResponse{}, err
	}
	return s.view(ctx, t.ID)
}

func (s *Service) Approve(ctx context.Context, id, actorID string) (TransactionResponse, error) {
	if _, err := s.store.ExecApprove(ctx, id, actorID, s.clock.Now()); err != nil {
		return TransactionResponse{}, err
	}
	return s.view(ctx, id)
}

func (s *Service) Reject(ctx context.Context, id, actorID, reason string) (TransactionResponse, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return TransactionResponse{}, apierr.Invalid("reason is required")
	}
	if _, err := s.store.ExecReject(ctx, id, actorID, reason, s.clock.Now()); err != nil {
		return TransactionResponse{}, err
	}
	return s.view(ctx, id)
}

func (s *Service) Cancel(ctx context.Context, id, actorID string) (TransactionResponse, error) {
	if _, err := s.store.ExecCancel(ctx, id, actorID, s.clock.Now()); err != nil {
		return TransactionResponse{}, err
	}
	return s.view(ctx, id)
}

func (s *Service) ConfirmPickup(ctx context.Context, id, actorID string) (TransactionResponse, error) {
	if _, err := s.store.ExecConfirmPickup(ctx, id, actorID, s.clock.Now()); err != nil {
		return TransactionResponse{}, err
	}
	return s.view(ctx, id)
}

func (s *Service) ConfirmReturn(ctx context.Context, id, actorID string) (TransactionResponse, error) {
	t, err := s.store.ExecConfirmReturn(ctx, id, actorID, s.clock.Now())
	if err != nil {
		return TransactionResponse{}, err
	}
	s.refresh(ctx, t.OwnerID, t.BorrowerID)
	return s.view(ctx, id)
}

// POST /transactions/:id/rate
func (s *Service) Rate(ctx context.Context, id, actorID string, in RateRequest) (RatingResponse, error) {
	if in.Score < 1 || in.Score > 5 {
		return RatingResponse{}, apierr.Invalid("score must be between 1 and 5")
	}
	subs := []struct {
		name string
		v    *int
	}{
		{"timeliness", in.Timeliness},
		{"condition_accuracy", in.ConditionAccuracy},
		{"communication", in.Communication},
	}
	for _, sub := range subs {
		if sub.v != nil && (*sub.v < 1 || *sub.v > 5) {
			return RatingResponse{}, apierr.Invalid(sub.name + " must be between 1 and 5")
		}
	}

	now := s.clock.Now()
	r := &Rating{
		ID:                s.id.NewULID(now),
		TransactionID:     id,
		RaterID:           actorID,
		Score:             in.Score,
		Timeliness:        nullInt(in.Timeliness),
		ConditionAccuracy: nullInt(in.ConditionAccuracy),
		Communication:     nullInt(in.Communication),
		CreatedAt:         now,
	}
	if in.Comment != nil && strings.TrimSpace(*in.Comment) != "" {
		r.Comment = sql.NullString{String: strings.TrimSpace(*in.Comment), Valid: true}
	}
	if err := s.store.ExecRate(ctx, r); err != nil {
		return RatingResponse{}, err
	}
	s.refresh(ctx, r.RatedID)
	return toRatingResponse(ratingView{Rating: *r}), nil
}

// GET /transactions/:id（当事者のみ）
func (s *Service) Get(ctx context.Context, id, actorID string) (TransactionDetail, error) {
	v, err := s.store.GetView(ctx, id)
	if err != nil {
		return TransactionDetail{}, err
	}
	if !v.IsParticipant(actorID) {
		return TransactionDetail{}, apierr.Forbidden("Not authorized to view this transaction")
	}
	rs, err := s.store.Ratings(ctx, id)
	if err != nil {
		return TransactionDetail{}, err
	}
	out := TransactionDetail{TransactionResponse: toResponse(v, s.clock.Now()), Ratings: make([]RatingResponse, 0, len(rs))}
	for _, r := range rs {
		out.Ratings = append(out.Ratings, toRatingResponse(r))
	}
	return out, nil
}

// GET /transactions?role=&status=
func (s *Service) List(ctx context.Context, actorID, role, status string, p httpx.Page) (ListResult, error) {
	switch role {
	case "", "all", "owner", "borrower":
	default:
		return ListResult{}, apierr.Invalid("role must be one of owner, borrower, all")
	}
	st := State(status)
	if status != "" && !st.Valid() {
		return ListResult{}, apierr.Invalid("unknown status: " + status)
	}
	p = p.Normalize()
	now := s.clock.Now()

	rows, total, err := s.store.List(ctx, ListFilter{
		ActorID: actorID, Role: role, Status: st, Now: now, Limit: p.Limit, Offset: p.Offset,
	})
	if err != nil {
		return ListResult{}, err
	}
	items := make([]TransactionResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toResponse(&rows[i], now))
	}
	return ListResult{Items: items, Total: total, NextOffset: p.NextOffset(total)}, nil
}

// SweepOverdue is run from the CLI.
func (s *Service) SweepOverdue(ctx context.Context) (SweepResult, error) {
	n, err := s.store.SweepOverdue(ctx, s.clock.Now())
	if err != nil {
		return SweepResult{}, err
	}
	if n > 0 {
		log.Printf("[INFO] marked %d transactions overdue", n)
	}
	return SweepResult{Marked: n}, nil
}

func (s *Service) refresh(ctx context.Context, userIDs ...string) {
	if s.rep == nil {
		return
	}
	if err := s.rep.Refresh(ctx, userIDs...); err != nil {
		log.Printf("[WARN] reputation refresh failed for %v: %v", userIDs, err)
	}
}

func (s *Service) view(ctx context.Context, id string) (TransactionResponse, error) {
	v, err := s.store.GetView(ctx, id)
	if err != nil {
		return TransactionResponse{}, err
	}
	return toResponse(v, s.clock.Now()), nil
}

// -------------- mapping --------------

func toResponse(v *txView, now time.Time) TransactionResponse {
	return TransactionResponse{
		ID:                      v.ID,
		BookID:                  v.BookID,
		OwnerID:                 v.OwnerID,
		BorrowerID:              v.BorrowerID,
		Status:                  string(v.EffectiveStatus(now)),
		OwnerConfirmedPickup:    v.OwnerConfirmedPickup,
		BorrowerConfirmedPickup: v.BorrowerConfirmedPickup,
		ReturnConfirmed:         v.ReturnConfirmed,
		DueDate:                 timePtr(v.DueDate),
		PickedUpAt:              timePtr(v.PickedUpAt),
		ReturnedAt:              timePtr(v.ReturnedAt),
		RejectionReason:         strPtr(v.RejectionReason),
		Message:                 strPtr(v.Message),
		CreatedAt:               v.CreatedAt,
		UpdatedAt:               v.UpdatedAt,
		BookTitle:               v.BookTitle,
		BookAuthor:              v.BookAuthor,
		BookCover:               strPtr(v.BookCover),
		OwnerName:               v.OwnerName,
		OwnerRating:             v.OwnerRating,
		BorrowerName:            v.BorrowerName,
		BorrowerRating:          v.BorrowerRating,
	}
}

func toRatingResponse(r ratingView) RatingResponse {
	return RatingResponse{
		ID:                r.ID,
		RaterID:           r.RaterID,
		RaterName:         r.RaterName,
		RatedID:           r.RatedID,
		Score:             r.Score,
		Timeliness:        int64Ptr(r.Timeliness),
		ConditionAccuracy: int64Ptr(r.ConditionAccuracy),
		Communication:     int64Ptr(r.Communication),
		Comment:           strPtr(r.Comment),
		CreatedAt:         r.CreatedAt,
	}
}

func nullInt(v *int) (n sql.NullInt64) {
	if v != nil {
		n.Valid, n.Int64 = true, int64(*v)
	}
	return
}

func timePtr(t sql.NullTime) *time.Time {
	if t.Valid {
		v := t.Time
		return &v
	}
	return nil
}

func strPtr(s sql.NullString) *string {
	if s.Valid {
		v := s.String
		return &v
	}
	return nil
}

func int64Ptr(n sql.NullInt64) *int64 {
	if n.Valid {
		v := n.Int64
		return &v
	}
	return nil
}
