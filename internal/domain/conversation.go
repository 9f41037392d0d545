package domain

import "time"

// ConversationSummary is one inbox row: the latest message exchanged with a
// counterpart and how many messages from them are still unread.
type ConversationSummary struct {
	CounterpartID string    `bson:"_id" json:"counterpart_id"`
	LastMessageID string    `bson:"last_message_id" json:"last_message_id"`
	LastSenderID  string    `bson:"last_sender_id" json:"last_sender_id"`
	LastBody      string    `bson:"last_body" json:"last_body"`
	LastAt        time.Time `bson:"last_at" json:"last_at"`
	Unread        int64     `bson:"unread" json:"unread"`
}
