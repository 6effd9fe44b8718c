package disputes

import (
	"context"
	"database/sql"
	"log"
	"net/url"
	"strings"

	"bookshare-backend/internal/lending"
	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/db"
	"bookshare-backend/internal/platform/httpx"
	"bookshare-backend/internal/platform/ids"
)

type Service struct {
	store *Store
	clock ids.Clock
	id    ids.IDGen
	rep   lending.ReputationRefresher
}

func NewService(d *db.DB, rep lending.ReputationRefresher) *Service {
	return &Service{store: NewStore(d), clock: ids.RealClock{}, id: ids.NewULIDGen(), rep: rep}
}

// POST /disputes
func (s *Service) File(ctx context.Context, reporterID string, in FileRequest) (DisputeResponse, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return DisputeResponse{}, apierr.Invalid("Reason is required")
	}
	if strings.TrimSpace(in.TransactionID) == "" {
		return DisputeResponse{}, apierr.Invalid("transaction_id is required")
	}
	urls := make([]string, 0, len(in.EvidenceURLs))
	for _, raw := range in.EvidenceURLs {
		u, err := validEvidenceURL(raw)
		if err != nil {
			return DisputeResponse{}, err
		}
		urls = append(urls, u)
	}

	now := s.clock.Now()
	d := &Dispute{
		ID:            s.id.NewULID(now),
		TransactionID: strings.TrimSpace(in.TransactionID),
		ReporterID:    reporterID,
		Reason:        reason,
		EvidenceURLs:  urls,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.Description != nil && strings.TrimSpace(*in.Description) != "" {
		d.Description = sql.NullString{String: strings.TrimSpace(*in.Description), Valid: true}
	}
	if err := s.store.ExecFile(ctx, d); err != nil {
		return DisputeResponse{}, err
	}

	// 通報された側の信頼スコアが下がる
	if s.rep != nil {
		if err := s.rep.Refresh(ctx, d.ReportedID); err != nil {
			log.Printf("[WARN] reputation refresh failed for %s: %v", d.ReportedID, err)
		}
	}
	return s.get(ctx, d.ID)
}

// POST /disputes/:id/evidence
func (s *Service) AddEvidence(ctx context.Context, id, actorID, rawURL string) (DisputeResponse, error) {
	u, err := validEvidenceURL(rawURL)
	if err != nil {
		return DisputeResponse{}, err
	}
	if err := s.store.ExecAddEvidence(ctx, id, actorID, u, s.clock.Now()); err != nil {
		return DisputeResponse{}, err
	}
	return s.get(ctx, id)
}

// GET /disputes/:id（当事者のみ）
func (s *Service) Get(ctx context.Context, id, actorID string) (DisputeResponse, error) {
	v, err := s.store.GetView(ctx, id)
	if err != nil {
		return DisputeResponse{}, err
	}
	if !v.IsParty(actorID) {
		// 存在を漏らさない
		return DisputeResponse{}, apierr.NotFound("Dispute not found")
	}
	return toResponse(v), nil
}

func (s *Service) ListMine(ctx context.Context, actorID string, p httpx.Page) (ListResult, error) {
	p = p.Normalize()
	rows, total, err := s.store.ListForUser(ctx, actorID, p)
	if err != nil {
		return ListResult{}, err
	}
	items := make([]DisputeResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toResponse(&rows[i]))
	}
	return ListResult{Items: items, Total: total, NextOffset: p.NextOffset(total)}, nil
}

// SetStatus is the moderation entry point; the route is admin-only.
func (s *Service) SetStatus(ctx context.Context, id string, in SetStatusRequest) (DisputeResponse, error) {
	st := Status(in.Status)
	if !st.Valid() {
		return DisputeResponse{}, apierr.Invalid("status must be one of Open, UnderReview, Resolved, Closed")
	}
	var res sql.NullString
	if in.Resolution != nil {
		res = sql.NullString{String: strings.TrimSpace(*in.Resolution), Valid: true}
	}
	if err := s.store.ExecSetStatus(ctx, id, st, res, s.clock.Now()); err != nil {
		return DisputeResponse{}, err
	}
	return s.get(ctx, id)
}

func (s *Service) get(ctx context.Context, id string) (DisputeResponse, error) {
	v, err := s.store.GetView(ctx, id)
	if err != nil {
		return DisputeResponse{}, err
	}
	return toResponse(v), nil
}

// validEvidenceURL accepts absolute http(s) URLs only.
func validEvidenceURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apierr.Invalid("evidence_url must be an absolute http(s) URL")
	}
	return raw, nil
}

func toResponse(v *disputeView) DisputeResponse {
	r := DisputeResponse{
		ID:                v.ID,
		TransactionID:     v.TransactionID,
		ReporterID:        v.ReporterID,
		ReportedID:        v.ReportedID,
		Reason:            v.Reason,
		EvidenceURLs:      v.EvidenceURLs,
		Status:            string(v.Status),
		CreatedAt:         v.CreatedAt,
		UpdatedAt:         v.UpdatedAt,
		BookID:            v.BookID,
		BookTitle:         v.BookTitle,
		TransactionStatus: v.TransactionStatus,
		ReporterName:      v.ReporterName,
		ReportedName:      v.ReportedName,
	}
	if v.Description.Valid {
		d := v.Description.String
		r.Description = &d
	}
	if v.Resolution.Valid {
		res := v.Resolution.String
		r.Resolution = &res
	}
	return r
}
