package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storebot/internal/assistant"
	"storebot/internal/display"
	"storebot/internal/intent"
	"storebot/internal/resolver"
	"storebot/pkg/log"
)

// Assistant answers utterances no rule matched.
type Assistant interface {
	Reply(ctx context.Context, history []assistant.Turn, utterance string) (string, error)
}

// turn collects what a handler wants to add to the log. effects run under
// the controller lock, and only if the dispatch is still current.
type turn struct {
	text    string
	intent  intent.Intent
	history []Message

	replies []Message
	effects []func()
}

func (t *turn) say(text string) {
	t.replies = append(t.replies, assistantText(text))
}

func (t *turn) show(kind Kind, text string, payload any) {
	t.replies = append(t.replies, newMessage(RoleAssistant, kind, text, payload))
}

func (t *turn) then(f func()) {
	t.effects = append(t.effects, f)
}

type handlerFunc func(ctx context.Context, t *turn) error

func (c *Controller) handlerTable() map[intent.Intent]handlerFunc {
	return map[intent.Intent]handlerFunc{
		intent.Track:      c.handleTrack,
		intent.OrdersLast: c.handleRecentOrders,
		intent.Buy:        c.handleSearch,
		intent.Category:   c.handleCategory,
		intent.Author:     c.handleAuthor,
		intent.Trending:   c.handleTrending,
		intent.FAQ:        c.handleFAQ,
		intent.Promo:      c.handlePromo,
		intent.Contact:    c.handleForm("contact", "Leave your details and our team will contact you."),
		intent.Feedback:   c.handleForm("feedback", "We'd love to hear from you. How was your experience?"),
		intent.MiniGame:   c.handleMiniGame,
		intent.Remind:     c.handleRemind,
		intent.AI:         c.handleAI,
	}
}

const historyUnavailable = "I can't check your order history right now. " +
	"Please make sure you are logged in and try again."

func (c *Controller) handleTrack(ctx context.Context, t *turn) error {
	var (
		order display.Order
		err   error
		ref   string
	)
	if code, ok := intent.ExtractOrderCode(t.text); ok {
		ref = intent.CanonicalCode(code)
		order, err = c.deps.Orders.FindOrderByCode(ctx, code, c.deps.MaxPages)
	} else if id, ok := intent.ExtractOrderID(t.text); ok {
		ref = "#" + id
		order, err = c.deps.Orders.FindOrderByID(ctx, id)
	} else {
		t.say("Sure! What's your order code? It looks like ORD-1234, or you can give me the order number.")
		return nil
	}

	switch {
	case err == nil:
		t.show(KindOrderList, describeOrder(order), []display.Order{order})
	case errors.Is(err, resolver.ErrOrderNotFound):
		t.say(fmt.Sprintf("I couldn't find order %s in your recent orders. Please double-check the code.", ref))
	case errors.Is(err, resolver.ErrInvalidOrderID):
		t.say("That doesn't look like a valid order number. Order numbers have up to 10 digits.")
	case errors.Is(err, resolver.ErrHistoryUnavailable):
		t.say(historyUnavailable)
	default:
		return err
	}
	return nil
}

func describeOrder(o display.Order) string {
	text := fmt.Sprintf("Order %s: %s, total %s", o.Code, o.StatusLabel, display.FormatMoney(o.Total))
	if o.PaymentLabel != "" {
		text += ", payment " + strings.ToLower(o.PaymentLabel)
	}
	return text + "."
}

func (c *Controller) handleRecentOrders(ctx context.Context, t *turn) error {
	orders, err := c.deps.Orders.RecentOrders(ctx, c.deps.RecentLimit)
	switch {
	case errors.Is(err, resolver.ErrHistoryUnavailable):
		t.say(historyUnavailable)
		return nil
	case err != nil:
		return err
	case len(orders) == 0:
		t.say("You don't have any orders yet.")
		return nil
	}
	t.show(KindOrderList, fmt.Sprintf("Here are your %d most recent orders:", len(orders)), orders)
	return nil
}

func (c *Controller) showBooks(t *turn, books []display.Book, found, empty string) {
	if len(books) == 0 {
		t.say(empty)
		return
	}
	t.show(KindBookList, found, books)
}

func (c *Controller) handleSearch(ctx context.Context, t *turn) error {
	q := intent.Subject(t.text, t.intent)
	if q == "" {
		t.say("Which book are you looking for? Tell me a title or a keyword.")
		return nil
	}
	books, err := c.deps.Catalog.Search(ctx, q)
	if err != nil {
		return err
	}
	c.showBooks(t, books, fmt.Sprintf("Here's what I found for \"%s\":", q),
		fmt.Sprintf("I couldn't find any books matching \"%s\".", q))
	return nil
}

func (c *Controller) handleCategory(ctx context.Context, t *turn) error {
	category := intent.Subject(t.text, t.intent)
	if category == "" {
		t.say("Which category interests you? For example: novels, children's books or self-help.")
		return nil
	}
	books, err := c.deps.Catalog.ByCategory(ctx, category)
	if err != nil {
		return err
	}
	c.showBooks(t, books, fmt.Sprintf("Books in \"%s\":", category),
		fmt.Sprintf("I couldn't find books in \"%s\".", category))
	return nil
}

func (c *Controller) handleAuthor(ctx context.Context, t *turn) error {
	author := intent.Subject(t.text, t.intent)
	if author == "" {
		t.say("Which author are you looking for?")
		return nil
	}
	books, err := c.deps.Catalog.ByAuthor(ctx, author)
	if err != nil {
		return err
	}
	c.showBooks(t, books, fmt.Sprintf("Books by %s:", author),
		fmt.Sprintf("I couldn't find books by %s.", author))
	return nil
}

func (c *Controller) handleTrending(ctx context.Context, t *turn) error {
	books, err := c.deps.Catalog.Featured(ctx)
	if err != nil {
		return err
	}
	c.showBooks(t, books, "These are trending right now:", "No featured books at the moment, check back soon!")
	return nil
}

func (c *Controller) handleFAQ(ctx context.Context, t *turn) error {
	faqs, err := c.deps.Support.FAQs(ctx, t.text)
	if err != nil {
		return err
	}
	if len(faqs) == 0 {
		t.say("I don't have an answer for that yet. You can contact our team for help.")
		return nil
	}
	t.show(KindFAQList, "These might help:", faqs)
	return nil
}

func (c *Controller) handlePromo(ctx context.Context, t *turn) error {
	coupons, err := c.deps.Support.Coupons(ctx)
	if err != nil {
		return err
	}
	if len(coupons) == 0 {
		t.say("There are no promotions running right now.")
		return nil
	}

	var b strings.Builder
	b.WriteString("Current promotions:")
	for _, cp := range coupons {
		b.WriteString("\n- ")
		b.WriteString(cp.Code)
		if cp.Discount != "" {
			b.WriteString(": ")
			b.WriteString(cp.Discount)
			b.WriteString(" off")
		}
		if cp.Description != "" {
			b.WriteString(" (")
			b.WriteString(cp.Description)
			b.WriteString(")")
		}
	}
	t.show(KindText, b.String(), coupons)
	return nil
}

func (c *Controller) handleForm(kind, prompt string) handlerFunc {
	fields := []string{"name", "email", "phone", "message"}
	if kind == "feedback" {
		fields = []string{"name", "email", "rating", "message"}
	}
	return func(_ context.Context, t *turn) error {
		t.show(KindForm, prompt, FormSpec{Kind: kind, Fields: fields})
		return nil
	}
}

func (c *Controller) handleMiniGame(ctx context.Context, t *turn) error {
	q := c.deps.Quotes[c.pick(len(c.deps.Quotes))]
	t.then(func() {
		t.say(c.game.Start(ctx, q))
	})
	return nil
}

func (c *Controller) handleRemind(_ context.Context, t *turn) error {
	d := ParseDelay(t.text, c.deps.Reminder)
	t.then(func() {
		c.scheduleReminder(d)
	})
	t.say(fmt.Sprintf("Okay! I'll remind you to read in %s.", formatDelay(d)))
	return nil
}

const fallback = "I'm not sure I understood. Try one of these, or ask about an order, a book or a promotion."

func (c *Controller) handleAI(ctx context.Context, t *turn) error {
	if c.deps.Assistant != nil {
		answer, err := c.deps.Assistant.Reply(ctx, toTurns(t.history), t.text)
		if err == nil {
			t.say(answer)
			return nil
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		if !errors.Is(err, assistant.ErrDisabled) {
			log.WithSession(c.id).WithField("error", err.Error()).Warn("Assistant reply failed, using fallback")
		}
	}
	t.show(KindQuickReplies, fallback, DefaultMenu)
	return nil
}

// toTurns converts the log before the current message into assistant turns.
func toTurns(history []Message) []assistant.Turn {
	if n := len(history); n > 0 && history[n-1].Role == RoleUser {
		history = history[:n-1]
	}
	out := make([]assistant.Turn, 0, len(history))
	for _, m := range history {
		if m.Kind != KindText {
			continue
		}
		out = append(out, assistant.Turn{FromUser: m.Role == RoleUser, Text: m.Text})
	}
	return out
}
