// Package conversation owns one chat: its message log, the intent dispatch
// loop, the guess-the-book mini-game and the reading reminder.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"storebot/internal/display"
	"storebot/internal/intent"
	"storebot/internal/monitor"
	"storebot/internal/support"
	"storebot/pkg/log"
)

var (
	// ErrClosed is returned by Send and SubmitForm after Close.
	ErrClosed = errors.New("conversation closed")
	// ErrEmptyMessage is returned for blank utterances.
	ErrEmptyMessage = errors.New("empty message")
	// ErrSuperseded is returned by Send when a newer message cancelled its
	// dispatch. Nothing was appended for it.
	ErrSuperseded = errors.New("dispatch superseded by a newer message")
)

const apology = "Sorry, something went wrong on my side. Please try again in a moment."

// Orders looks up a shopper's orders.
type Orders interface {
	FindOrderByCode(ctx context.Context, code string, maxPages int) (display.Order, error)
	FindOrderByID(ctx context.Context, id string) (display.Order, error)
	RecentOrders(ctx context.Context, limit int) ([]display.Order, error)
}

// Catalog lists books.
type Catalog interface {
	Search(ctx context.Context, query string) ([]display.Book, error)
	ByCategory(ctx context.Context, category string) ([]display.Book, error)
	ByAuthor(ctx context.Context, author string) ([]display.Book, error)
	Featured(ctx context.Context) ([]display.Book, error)
}

// Support serves FAQs, coupons and forms.
type Support interface {
	FAQs(ctx context.Context, topic string) ([]display.FAQ, error)
	Coupons(ctx context.Context) ([]display.Coupon, error)
	Submit(ctx context.Context, form support.Form) error
}

// Archiver receives the log a conversation discards on Reset or Close.
type Archiver func(conversationID, reason string, messages []Message)

// Deps are the collaborators shared by every conversation.
type Deps struct {
	Orders     Orders
	Catalog    Catalog
	Support    Support
	Assistant  Assistant
	Classifier *intent.Classifier
	Metrics    *monitor.MetricsCollector
	Archive    Archiver

	MaxPages    int
	RecentLimit int
	Quotes      []Quote
	RewardCode  string
	Reminder    ReminderConfig
}

// Controller is one conversation. All methods are safe for concurrent use;
// handlers run outside the lock.
type Controller struct {
	id       string
	deps     Deps
	handlers map[intent.Intent]handlerFunc
	after    afterFunc
	pick     func(n int) int

	mu       sync.Mutex
	messages []Message
	game     *miniGame
	closed   bool

	// dispatch is the generation of the newest Send; cancel aborts it.
	dispatch uint64
	cancel   context.CancelFunc

	// reminderSeq invalidates timers that fire after being replaced.
	reminder    timer
	reminderSeq uint64
}

// New starts a conversation with the greeting log.
func New(id string, deps Deps) *Controller {
	if deps.Classifier == nil {
		deps.Classifier = intent.NewClassifier(intent.DefaultRules())
	}
	if len(deps.Quotes) == 0 {
		deps.Quotes = DefaultQuotes
	}
	if deps.RewardCode == "" {
		deps.RewardCode = "READMORE10"
	}
	deps.Reminder = deps.Reminder.withDefaults()

	c := &Controller{
		id:       id,
		deps:     deps,
		after:    realAfterFunc,
		pick:     rand.IntN,
		messages: greetingLog(),
		game:     newMiniGame(deps.RewardCode, deps.Metrics),
	}
	c.handlers = c.handlerTable()
	return c
}

// ID returns the conversation id.
func (c *Controller) ID() string {
	return c.id
}

// Messages returns a copy of the log, oldest first.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Busy reports whether a dispatch is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// GameState is none, step1 or step2.
func (c *Controller) GameState() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.game.State()
}

// Send appends the shopper's message and answers it. A dispatch still
// running for an earlier message is cancelled and its result dropped.
func (c *Controller) Send(ctx context.Context, utterance string) error {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.messages = append(c.messages, newMessage(RoleUser, KindText, text, nil))
	c.supersede()

	if c.game.Active() {
		reply := c.game.Play(ctx, text)
		c.messages = append(c.messages, assistantText(reply))
		c.mu.Unlock()
		return nil
	}

	c.dispatch++
	gen := c.dispatch
	dctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	history := c.messages
	c.mu.Unlock()
	defer cancel()

	in := c.deps.Classifier.Classify(text)
	c.deps.Metrics.RecordIntent(string(in))

	t := &turn{text: text, intent: in, history: history}
	start := time.Now()
	err := c.run(dctx, t)
	c.deps.Metrics.RecordDispatch(string(in), time.Since(start))

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.dispatch || c.closed {
		c.deps.Metrics.RecordStaleDispatch()
		return ErrSuperseded
	}
	c.cancel = nil
	if errors.Is(dctx.Err(), context.Canceled) {
		// the caller went away; nothing to show
		return dctx.Err()
	}
	if err != nil {
		kind := "error"
		var pe *panicError
		switch {
		case errors.As(err, &pe):
			kind = "panic"
		case errors.Is(err, context.DeadlineExceeded):
			kind = "timeout"
		}
		c.deps.Metrics.RecordHandlerFailure(string(in), kind)
		log.WithSession(c.id).WithFields(log.Fields{
			"intent": in,
			"error":  err.Error(),
		}).Error("Intent handler failed")
		c.messages = append(c.messages, assistantText(apology))
		return nil
	}
	for _, apply := range t.effects {
		apply()
	}
	c.messages = append(c.messages, t.replies...)
	return nil
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.value)
}

// run invokes the handler for t.intent, turning a panic into an error.
func (c *Controller) run(ctx context.Context, t *turn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()

	h, ok := c.handlers[t.intent]
	if !ok {
		h = c.handlers[intent.AI]
	}
	return h(ctx, t)
}

// supersede cancels the in-flight dispatch, if any. Callers hold c.mu.
func (c *Controller) supersede() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.dispatch++
}

// Reset clears the log back to the greeting and menu, ends the mini-game
// and cancels any pending reminder. It is idempotent.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.supersede()
	c.game.Stop(context.Background())
	c.cancelReminder()
	old := c.messages
	c.messages = greetingLog()
	c.mu.Unlock()

	c.archive("reset", old)
}

// Close ends the conversation: in-flight work is cancelled, the reminder
// stopped and the log archived. Further calls are no-ops.
func (c *Controller) Close() {
	c.CloseWithReason("close")
}

// CloseWithReason is Close with the reason recorded on the archived log,
// e.g. "idle" for evicted sessions.
func (c *Controller) CloseWithReason(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.supersede()
	c.game.Stop(context.Background())
	c.cancelReminder()
	old := c.messages
	c.mu.Unlock()

	c.archive(reason, old)
}

func (c *Controller) archive(reason string, messages []Message) {
	if c.deps.Archive == nil || !hasUserMessage(messages) {
		return
	}
	c.deps.Archive(c.id, reason, messages)
}

func hasUserMessage(messages []Message) bool {
	for _, m := range messages {
		if m.Role == RoleUser {
			return true
		}
	}
	return false
}

// SubmitForm delivers a contact or feedback form and reports the outcome as
// a message. Delivery failures become a soft-failure message, not an error.
func (c *Controller) SubmitForm(ctx context.Context, form support.Form) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	if err := form.Validate(); err != nil {
		return err
	}

	var reply string
	if err := c.deps.Support.Submit(ctx, form); err != nil {
		log.WithSession(c.id).WithFields(log.Fields{
			"form":  form.Kind,
			"error": err.Error(),
		}).Warn("Form submission failed")
		c.deps.Metrics.RecordHandlerFailure("form."+string(form.Kind), "error")
		reply = "Sorry, I couldn't send that right now. Please try again later or email us directly."
	} else if form.Kind == support.FormFeedback {
		reply = "Thank you for your feedback!"
	} else {
		reply = "Thanks! Our team will get back to you soon."
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.messages = append(c.messages, assistantText(reply))
	return nil
}

// scheduleReminder replaces any pending reminder. Callers hold c.mu.
func (c *Controller) scheduleReminder(d time.Duration) {
	c.cancelReminder()
	seq := c.reminderSeq
	c.reminder = c.after(d, func() { c.fireReminder(seq) })
	c.deps.Metrics.RecordReminderEvent("scheduled")
}

// cancelReminder stops the pending reminder. Callers hold c.mu.
func (c *Controller) cancelReminder() {
	c.reminderSeq++
	if c.reminder != nil {
		c.reminder.Stop()
		c.reminder = nil
		c.deps.Metrics.RecordReminderEvent("cancelled")
	}
}

func (c *Controller) fireReminder(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || seq != c.reminderSeq {
		return
	}
	c.reminder = nil
	c.messages = append(c.messages, assistantText("Reading time! 📖 You asked me to remind you to get back to your book."))
	c.deps.Metrics.RecordReminderEvent("fired")
}
