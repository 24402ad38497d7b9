package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"storebot/internal/conversation"
	"storebot/internal/session"
	"storebot/internal/support"
	"storebot/pkg/log"
	"storebot/pkg/utils"
)

// Sessions is the slice of the session manager the chat API needs.
type Sessions interface {
	Create() (*conversation.Controller, error)
	Get(id string) (*conversation.Controller, error)
	Close(id string) error
}

// ChatHandler chat session handler
type ChatHandler struct {
	sessions Sessions
}

// NewChatHandler creates a chat handler
func NewChatHandler(sessions Sessions) *ChatHandler {
	utils.RegisterCustomValidators()
	return &ChatHandler{sessions: sessions}
}

// SendMessageRequest send message request
type SendMessageRequest struct {
	Text string `json:"text" binding:"required,max=2000"`
}

// ConversationView is what every chat endpoint returns.
type ConversationView struct {
	SessionID  string                 `json:"session_id"`
	Messages   []conversation.Message `json:"messages"`
	GameState  string                 `json:"game_state"`
	Busy       bool                   `json:"busy"`
	Superseded bool                   `json:"superseded,omitempty"`
}

func view(ctrl *conversation.Controller, since string) ConversationView {
	return ConversationView{
		SessionID: ctrl.ID(),
		Messages:  after(ctrl.Messages(), since),
		GameState: ctrl.GameState(),
		Busy:      ctrl.Busy(),
	}
}

// after returns the messages following the one with id since. An unknown
// or empty id yields the whole log.
func after(messages []conversation.Message, since string) []conversation.Message {
	if since == "" {
		return messages
	}
	for i, m := range messages {
		if m.ID == since {
			return messages[i+1:]
		}
	}
	return messages
}

// CreateSession starts a conversation with the greeting and menu.
func (h *ChatHandler) CreateSession(c *gin.Context) {
	ctrl, err := h.sessions.Create()
	if err != nil {
		if errors.Is(err, session.ErrTooManySessions) {
			utils.Error(c, utils.CodeRateLimit, "Too many open chats, please try again later")
			return
		}
		utils.ErrorFrom(c, err)
		return
	}

	utils.SuccessResponse(c, view(ctrl, ""))
}

// GetMessages returns the log, or only what follows ?since=<message id>.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	utils.SuccessResponse(c, view(ctrl, c.Query("since")))
}

// SendMessage sends one shopper utterance and returns the updated log.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if !bind(c, &req) {
		return
	}

	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	err := ctrl.Send(c.Request.Context(), req.Text)
	switch {
	case err == nil:
	case errors.Is(err, conversation.ErrSuperseded):
		// a newer message from the same chat owns the reply
		v := view(ctrl, c.Query("since"))
		v.Superseded = true
		utils.SuccessResponse(c, v)
		return
	case errors.Is(err, conversation.ErrEmptyMessage):
		utils.Error(c, utils.CodeInvalidParam, "Message must not be empty")
		return
	case errors.Is(err, conversation.ErrClosed):
		utils.ErrorFrom(c, utils.ErrSessionClosed)
		return
	case errors.Is(err, context.Canceled):
		// client went away; nothing to write
		c.Abort()
		return
	default:
		log.WithSession(ctrl.ID()).WithError(err).Error("Failed to send message")
		utils.ErrorFrom(c, err)
		return
	}

	utils.SuccessResponse(c, view(ctrl, c.Query("since")))
}

// ResetSession clears the conversation back to the greeting.
func (h *ChatHandler) ResetSession(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	ctrl.Reset()
	utils.SuccessResponse(c, view(ctrl, ""))
}

// SubmitForm delivers a contact or feedback form typed into the chat.
func (h *ChatHandler) SubmitForm(c *gin.Context) {
	var form support.Form
	if !bind(c, &form) {
		return
	}

	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := ctrl.SubmitForm(c.Request.Context(), form); err != nil {
		if errors.Is(err, conversation.ErrClosed) {
			utils.ErrorFrom(c, utils.ErrSessionClosed)
			return
		}
		utils.ErrorFrom(c, err)
		return
	}
	utils.SuccessResponse(c, view(ctrl, c.Query("since")))
}

// CloseSession ends the conversation and archives it.
func (h *ChatHandler) CloseSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			utils.ErrorFrom(c, utils.ErrSessionNotFound)
			return
		}
		utils.ErrorFrom(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"session_id": c.Param("id"), "closed": true})
}

func (h *ChatHandler) lookup(c *gin.Context) (*conversation.Controller, bool) {
	ctrl, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			utils.ErrorFrom(c, utils.ErrSessionNotFound)
		} else {
			utils.ErrorFrom(c, err)
		}
		return nil, false
	}
	return ctrl, true
}

// bind decodes the JSON body into obj and reports validation failures as
// one invalid-param envelope.
func bind(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		if verr := utils.ValidateStruct(obj); verr != nil {
			utils.ErrorFrom(c, verr)
		} else {
			utils.Error(c, utils.CodeInvalidParam, "Invalid request body")
		}
		return false
	}
	return true
}
