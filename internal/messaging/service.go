package messaging

import (
	"context"
	"strings"

	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/db"
	"bookshare-backend/internal/platform/httpx"
	"bookshare-backend/internal/platform/ids"
)

type Service struct {
	store *Store
	clock ids.Clock
	id    ids.IDGen
	hub   *Hub
}

func NewService(d *db.DB, hub *Hub) *Service {
	return &Service{store: NewStore(d), clock: ids.RealClock{}, id: ids.NewULIDGen(), hub: hub}
}

// POST /transactions/:id/messages
// 当事者のみ、かつ Approved / PickedUp / Overdue の間だけ送れる
func (s *Service) Send(ctx context.Context, txID, senderID string, in SendRequest) (MessageResponse, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return MessageResponse{}, apierr.Invalid("Message content is required")
	}
	mt := TypeText
	if in.MessageType != "" {
		mt = MessageType(in.MessageType)
		if !mt.Valid() {
			return MessageResponse{}, apierr.Invalid("message_type must be one of text, image, status_update")
		}
	}

	now := s.clock.Now()
	m := &Message{
		ID:            s.id.NewULID(now),
		TransactionID: txID,
		SenderID:      senderID,
		Content:       content,
		MessageType:   mt,
		CreatedAt:     now,
	}
	if err := s.store.ExecSend(ctx, m); err != nil {
		return MessageResponse{}, err
	}
	v, err := s.store.GetView(ctx, m.ID)
	if err != nil {
		return MessageResponse{}, err
	}
	res := toResponse(v)
	if s.hub != nil {
		s.hub.Broadcast(txID, Event{Type: EventMessageNew, UserID: senderID, Data: res, Timestamp: now})
	}
	return res, nil
}

// GET /transactions/:id/messages
func (s *Service) History(ctx context.Context, txID, actorID string, p httpx.Page) (ListResult, error) {
	if err := s.Authorize(ctx, txID, actorID); err != nil {
		return ListResult{}, err
	}
	p = p.Normalize()
	rows, total, err := s.store.History(ctx, txID, p)
	if err != nil {
		return ListResult{}, err
	}
	items := make([]MessageResponse, 0, len(rows))
	for i := range rows {
		items = append(items, toResponse(&rows[i]))
	}
	return ListResult{Items: items, Total: total, NextOffset: p.NextOffset(total)}, nil
}

// Authorize gates history and websocket subscription on participation only;
// sending additionally checks the transaction status.
func (s *Service) Authorize(ctx context.Context, txID, actorID string) error {
	t, err := s.store.Transaction(ctx, txID)
	if err != nil {
		return err
	}
	if !t.IsParticipant(actorID) {
		return apierr.Forbidden("Not authorized to view these messages")
	}
	return nil
}

// handleFrame dispatches one websocket frame from c.
func (s *Service) handleFrame(ctx context.Context, c *Client, in inbound) {
	switch in.Type {
	case "send_message":
		// 成功時の message_new は Send 内で送信者にも届く
		if _, err := s.Send(ctx, c.TxID, c.UserID, SendRequest{Content: in.Content, MessageType: in.MessageType}); err != nil {
			s.hub.reply(c, Event{Type: EventError, Data: apierr.FromErr(err)})
		}
	case "typing":
		s.hub.broadcastExcept(c, Event{Type: EventTyping, UserID: c.UserID})
	case "stop_typing":
		s.hub.broadcastExcept(c, Event{Type: EventStopTyping, UserID: c.UserID})
	default:
		s.hub.reply(c, Event{Type: EventError, Data: "unknown frame type: " + in.Type})
	}
}

func toResponse(v *messageView) MessageResponse {
	return MessageResponse{
		ID:            v.ID,
		TransactionID: v.TransactionID,
		SenderID:      v.SenderID,
		SenderName:    v.SenderName,
		Content:       v.Content,
		MessageType:   string(v.MessageType),
		CreatedAt:     v.CreatedAt,
	}
}
