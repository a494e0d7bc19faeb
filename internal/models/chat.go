package models

// SenderType identifies which side of the classroom sent a chat message.
type SenderType string

const (
	SenderTeacher SenderType = "teacher"
	SenderStudent SenderType = "student"
)

// MaxChatMessageLen is the maximum accepted chat message length in runes.
const MaxChatMessageLen = 500

// ChatMessage is one entry in the session's append-only chat log.
type ChatMessage struct {
	ID         string     `json:"id"`
	Message    string     `json:"message"`
	SenderType SenderType `json:"senderType"`
	SenderName string     `json:"senderName"`
	Timestamp  int64      `json:"timestamp"`
}
