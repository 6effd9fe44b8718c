package messaging

import "time"

// POST /transactions/:id/messages
type SendRequest struct {
	Content     string `json:"content" binding:"required"`
	MessageType string `json:"message_type"` // 省略時 text
}

type MessageResponse struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	SenderID      string    `json:"sender_id"`
	SenderName    string    `json:"sender_name"`
	Content       string    `json:"content"`
	MessageType   string    `json:"message_type"`
	CreatedAt     time.Time `json:"created_at"`
}

type ListResult struct {
	Items      []MessageResponse `json:"items"`
	Total      int64             `json:"total"`
	NextOffset int               `json:"next_offset"`
}

// websocket でクライアントから届くフレーム
type inbound struct {
	Type        string `json:"type"` // send_message | typing | stop_typing
	Content     string `json:"content,omitempty"`
	MessageType string `json:"message_type,omitempty"`
}
