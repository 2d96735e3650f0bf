package chat

import (
	"sort"
	"strings"
	"time"
)

type Chat struct {
	ID               string            `json:"id"                     bson:"_id"`
	Participants     []string          `json:"participants"           bson:"participants"`
	ParticipantNames map[string]string `json:"participantNames"       bson:"participantNames"`
	UnreadCount      map[string]int    `json:"unreadCount"            bson:"unreadCount"`
	ProductID        string            `json:"productId,omitempty"    bson:"productId,omitempty"`
	LastMessage      string            `json:"lastMessage,omitempty"  bson:"lastMessage,omitempty"`
	LastSenderID     string            `json:"lastSenderId,omitempty" bson:"lastSenderId,omitempty"`
	LastMessageAt    time.Time         `json:"lastMessageAt"          bson:"lastMessageAt"`
	CreatedAt        time.Time         `json:"createdAt"              bson:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"              bson:"updatedAt"`
}

func (c Chat) SortKey() (time.Time, string) { return c.LastMessageAt, c.ID }

func (c Chat) HasParticipant(id string) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// Peer returns the other participant.
func (c Chat) Peer(id string) string {
	for _, p := range c.Participants {
		if p != id {
			return p
		}
	}
	return ""
}

type Message struct {
	ID        string    `json:"id"        bson:"_id"`
	ChatID    string    `json:"chatId"    bson:"chatId"`
	SenderID  string    `json:"senderId"  bson:"senderId"`
	Text      string    `json:"text"      bson:"text"`
	Read      bool      `json:"read"      bson:"read"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

func (m Message) SortKey() (time.Time, string) { return m.CreatedAt, m.ID }

// ID returns the chat id for a pair of users. It does not depend on the
// order of the arguments.
func ID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}

// OpenRequest starts or reuses the chat with another user.
// swagger:model OpenChatRequest
type OpenRequest struct {
	PeerID    string `json:"peerId"    validate:"required" example:"u-seller-1"`
	ProductID string `json:"productId" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
}

// SendRequest is the body of a new message.
// swagger:model SendMessageRequest
type SendRequest struct {
	Text string `json:"text" validate:"required,max=2000" example:"Is this still available?"`
}
