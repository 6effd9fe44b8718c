package messaging

import "time"

type MessageType string

const (
	TypeText         MessageType = "text"
	TypeImage        MessageType = "image"
	TypeStatusUpdate MessageType = "status_update"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeStatusUpdate:
		return true
	}
	return false
}

// Message は messages テーブルの1行（追記のみ）
type Message struct {
	ID            string
	TransactionID string
	SenderID      string
	Content       string
	MessageType   MessageType
	CreatedAt     time.Time
}

type messageView struct {
	Message
	SenderName string
}
