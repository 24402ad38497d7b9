package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role says who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind selects how the UI renders a message.
type Kind string

const (
	KindText         Kind = "text"
	KindQuickReplies Kind = "quick-replies"
	KindBookList     Kind = "book-list"
	KindOrderList    Kind = "order-list"
	KindFAQList      Kind = "faq-list"
	KindForm         Kind = "form"
)

// Message is one entry of the conversation log. Payload depends on Kind:
// []QuickReply, []display.Book, []display.Order, []display.FAQ, FormSpec, or
// []display.Coupon on promo text.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	Payload   any       `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// QuickReply is a suggested utterance shown as a button.
type QuickReply struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// FormSpec describes an inline form the UI should render.
type FormSpec struct {
	Kind   string   `json:"kind"`
	Fields []string `json:"fields"`
}

func newMessage(role Role, kind Kind, text string, payload any) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Kind:      kind,
		Text:      text,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

func assistantText(text string) Message {
	return newMessage(RoleAssistant, KindText, text, nil)
}

// DefaultMenu is the quick-reply menu shown after the greeting.
var DefaultMenu = []QuickReply{
	{Label: "Track an order", Text: "track my order"},
	{Label: "My recent orders", Text: "my recent orders"},
	{Label: "Best sellers", Text: "best sellers"},
	{Label: "Promotions", Text: "any coupons?"},
	{Label: "Play a game", Text: "play a game"},
	{Label: "Contact us", Text: "contact support"},
}

const greeting = "Hi! I'm the bookstore assistant. I can track orders, find books, " +
	"show promotions or answer questions. What can I do for you?"

func greetingLog() []Message {
	return []Message{
		assistantText(greeting),
		newMessage(RoleAssistant, KindQuickReplies, "You can also pick one of these:", DefaultMenu),
	}
}
