package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storebot/internal/assistant"
	"storebot/internal/display"
	"storebot/internal/resolver"
	"storebot/internal/support"
	"storebot/pkg/payload"
)

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) FindOrderByCode(ctx context.Context, code string, maxPages int) (display.Order, error) {
	args := m.Called(ctx, code, maxPages)
	return args.Get(0).(display.Order), args.Error(1)
}

func (m *mockOrders) FindOrderByID(ctx context.Context, id string) (display.Order, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(display.Order), args.Error(1)
}

func (m *mockOrders) RecentOrders(ctx context.Context, limit int) ([]display.Order, error) {
	args := m.Called(ctx, limit)
	orders, _ := args.Get(0).([]display.Order)
	return orders, args.Error(1)
}

type mockSupport struct {
	mock.Mock
}

func (m *mockSupport) FAQs(ctx context.Context, topic string) ([]display.FAQ, error) {
	args := m.Called(ctx, topic)
	faqs, _ := args.Get(0).([]display.FAQ)
	return faqs, args.Error(1)
}

func (m *mockSupport) Coupons(ctx context.Context) ([]display.Coupon, error) {
	args := m.Called(ctx)
	coupons, _ := args.Get(0).([]display.Coupon)
	return coupons, args.Error(1)
}

func (m *mockSupport) Submit(ctx context.Context, form support.Form) error {
	return m.Called(ctx, form).Error(0)
}

type fakeCatalog struct {
	search   func(ctx context.Context, q string) ([]display.Book, error)
	featured func(ctx context.Context) ([]display.Book, error)
}

func (f *fakeCatalog) Search(ctx context.Context, q string) ([]display.Book, error) {
	return f.search(ctx, q)
}

func (f *fakeCatalog) ByCategory(ctx context.Context, category string) ([]display.Book, error) {
	return []display.Book{{ID: "c1", Title: category}}, nil
}

func (f *fakeCatalog) ByAuthor(ctx context.Context, author string) ([]display.Book, error) {
	return nil, nil
}

func (f *fakeCatalog) Featured(ctx context.Context) ([]display.Book, error) {
	return f.featured(ctx)
}

type assistantFunc func(ctx context.Context, history []assistant.Turn, utterance string) (string, error)

func (f assistantFunc) Reply(ctx context.Context, history []assistant.Turn, utterance string) (string, error) {
	return f(ctx, history, utterance)
}

type fakeTimer struct {
	d       time.Duration
	fire    func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type harness struct {
	*Controller
	orders   *mockOrders
	support  *mockSupport
	catalog  *fakeCatalog
	timers   []*fakeTimer
	archived []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		orders:  new(mockOrders),
		support: new(mockSupport),
		catalog: &fakeCatalog{
			search: func(ctx context.Context, q string) ([]display.Book, error) {
				return []display.Book{{ID: "1", Title: q}}, nil
			},
			featured: func(ctx context.Context) ([]display.Book, error) {
				return []display.Book{{ID: "9", Title: "Nhà Giả Kim"}}, nil
			},
		},
	}
	var mu sync.Mutex
	h.Controller = New("conv-1", Deps{
		Orders:   h.orders,
		Catalog:  h.catalog,
		Support:  h.support,
		MaxPages: 5,
		Quotes:   []Quote{{Text: "Hắn vừa đi vừa chửi.", Answer: "Chí Phèo", Hint: "Nam Cao"}},
		Archive: func(id, reason string, messages []Message) {
			mu.Lock()
			defer mu.Unlock()
			h.archived = append(h.archived, fmt.Sprintf("%s:%s:%d", id, reason, len(messages)))
		},
	})
	h.Controller.pick = func(int) int { return 0 }
	h.Controller.after = func(d time.Duration, f func()) timer {
		ft := &fakeTimer{d: d, fire: f}
		h.timers = append(h.timers, ft)
		return ft
	}
	return h
}

func (h *harness) send(t *testing.T, text string) Message {
	t.Helper()
	require.NoError(t, h.Send(context.Background(), text))
	msgs := h.Messages()
	return msgs[len(msgs)-1]
}

func assistantCount(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == RoleAssistant {
			n++
		}
	}
	return n
}

func TestNewStartsWithGreeting(t *testing.T) {
	h := newHarness(t)

	msgs := h.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, KindText, msgs[0].Kind)
	assert.Equal(t, KindQuickReplies, msgs[1].Kind)
	assert.Equal(t, DefaultMenu, msgs[1].Payload)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
	assert.False(t, h.Busy())
}

func TestResetAlwaysYieldsGreeting(t *testing.T) {
	h := newHarness(t)
	h.send(t, "best sellers")
	h.send(t, "play a game")
	require.Equal(t, gameStep1, h.GameState())

	h.Reset()
	msgs := h.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, KindQuickReplies, msgs[1].Kind)
	assert.Equal(t, gameNone, h.GameState())

	h.Reset()
	assert.Len(t, h.Messages(), 2)
	assert.Equal(t, []string{"conv-1:reset:6"}, h.archived)
}

func TestEmptyMessage(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.Send(context.Background(), "   "), ErrEmptyMessage)
	assert.Len(t, h.Messages(), 2)
}

func TestMiniGameTwoStepWin(t *testing.T) {
	h := newHarness(t)

	prompt := h.send(t, "let's play a game")
	assert.Contains(t, prompt.Text, "Hắn vừa đi vừa chửi.")
	assert.Equal(t, gameStep1, h.GameState())

	retry := h.send(t, "Tắt Đèn")
	assert.Contains(t, retry.Text, "try again")
	assert.Contains(t, retry.Text, "Nam Cao")
	assert.Equal(t, gameStep2, h.GameState())

	win := h.send(t, "chi pheo!")
	assert.Contains(t, win.Text, "Correct")
	assert.Contains(t, win.Text, "READMORE10")
	assert.Equal(t, gameNone, h.GameState())

	// greeting + menu + prompt, try again, success
	assert.Equal(t, 2+3, assistantCount(h.Messages()))
	assert.Len(t, h.Messages(), 2+6)
}

func TestMiniGameEndings(t *testing.T) {
	tests := []struct {
		name    string
		guesses []string
		want    string
	}{
		{"first try", []string{"CHÍ PHÈO"}, "Correct"},
		{"skip at step one", []string{"skip"}, "The answer was \"Chí Phèo\" by Nam Cao"},
		{"skip at step two", []string{"Lão Hạc", "bỏ qua"}, "The answer was \"Chí Phèo\""},
		{"two misses", []string{"Lão Hạc", "Vợ Nhặt"}, "Not this time"},
		{"exit", []string{"exit"}, "Game stopped"},
		{"guess inside a sentence", []string{"I think it's Chí Phèo"}, "Correct"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.send(t, "play a game")

			var last Message
			for _, g := range tt.guesses {
				last = h.send(t, g)
			}
			assert.Contains(t, last.Text, tt.want)
			assert.Equal(t, gameNone, h.GameState())
		})
	}
}

func TestMiniGamePreemptsDispatch(t *testing.T) {
	h := newHarness(t)
	h.send(t, "play a game")

	reply := h.send(t, "where is ORD-AB12")
	assert.Contains(t, reply.Text, "try again")
	h.orders.AssertNotCalled(t, "FindOrderByCode", mock.Anything, mock.Anything, mock.Anything)

	msgs := h.Messages()
	assert.Equal(t, RoleUser, msgs[len(msgs)-2].Role)
	assert.Equal(t, "where is ORD-AB12", msgs[len(msgs)-2].Text)
}

func TestTrackByCode(t *testing.T) {
	h := newHarness(t)
	order := display.Order{ID: "42", Code: "ORD-AB12", StatusLabel: "Shipping", PaymentLabel: "Paid", Total: 200000}
	h.orders.On("FindOrderByCode", mock.Anything, "ORD-AB12", 5).Return(order, nil).Once()
	h.orders.On("FindOrderByCode", mock.Anything, "ord_zz9", 5).Return(display.Order{}, resolver.ErrOrderNotFound).Once()

	reply := h.send(t, "check ORD-AB12 please")
	assert.Equal(t, KindOrderList, reply.Kind)
	assert.Equal(t, []display.Order{order}, reply.Payload)
	assert.Contains(t, reply.Text, "ORD-AB12")
	assert.Contains(t, reply.Text, "Shipping")

	reply = h.send(t, "ord_zz9")
	assert.Equal(t, KindText, reply.Kind)
	assert.Contains(t, reply.Text, "couldn't find order ORD-ZZ9")

	h.orders.AssertExpectations(t)
}

func TestTrackByIDAndPrompt(t *testing.T) {
	h := newHarness(t)
	h.orders.On("FindOrderByID", mock.Anything, "4521").
		Return(display.Order{}, fmt.Errorf("%w: 401", resolver.ErrHistoryUnavailable)).Once()

	reply := h.send(t, "status of #4521")
	assert.Contains(t, reply.Text, "logged in")

	reply = h.send(t, "where is my order")
	assert.Contains(t, reply.Text, "order code")

	h.orders.AssertExpectations(t)
}

func TestRecentOrders(t *testing.T) {
	h := newHarness(t)
	orders := []display.Order{{Code: "ORD-1"}, {Code: "ORD-2"}}
	h.orders.On("RecentOrders", mock.Anything, 0).Return(orders, nil).Once()
	h.orders.On("RecentOrders", mock.Anything, 0).Return(nil, fmt.Errorf("%w: 401", resolver.ErrHistoryUnavailable)).Once()

	reply := h.send(t, "show my orders")
	assert.Equal(t, KindOrderList, reply.Kind)
	assert.Equal(t, orders, reply.Payload)

	reply = h.send(t, "show my orders")
	assert.Contains(t, reply.Text, "logged in")
}

func TestCatalogIntents(t *testing.T) {
	h := newHarness(t)

	reply := h.send(t, "tìm sách Tắt Đèn")
	assert.Equal(t, KindBookList, reply.Kind)
	assert.Equal(t, []display.Book{{ID: "1", Title: "Tắt Đèn"}}, reply.Payload)

	reply = h.send(t, "what's trending")
	assert.Equal(t, KindBookList, reply.Kind)

	reply = h.send(t, "books by Nam Cao")
	assert.Equal(t, KindText, reply.Kind)
	assert.Contains(t, reply.Text, "Nam Cao")

	reply = h.send(t, "I want to buy")
	assert.Contains(t, reply.Text, "Which book")
}

func TestSupportIntents(t *testing.T) {
	h := newHarness(t)
	h.support.On("Coupons", mock.Anything).Return([]display.Coupon{{Code: "SALE10", Discount: "10%"}}, nil)
	h.support.On("FAQs", mock.Anything, "what is the return policy").
		Return([]display.FAQ{{Question: "Returns?", Answer: "7 days"}}, nil)

	reply := h.send(t, "any coupons today?")
	assert.Contains(t, reply.Text, "SALE10: 10% off")

	reply = h.send(t, "what is the return policy")
	assert.Equal(t, KindFAQList, reply.Kind)

	reply = h.send(t, "I need to talk to a human")
	assert.Equal(t, KindForm, reply.Kind)
	assert.Equal(t, "contact", reply.Payload.(FormSpec).Kind)
}

func TestHandlerFailureBecomesOneApology(t *testing.T) {
	h := newHarness(t)
	h.catalog.featured = func(ctx context.Context) ([]display.Book, error) {
		return nil, errors.New("502 bad gateway")
	}

	before := len(h.Messages())
	reply := h.send(t, "best sellers")
	assert.Equal(t, apology, reply.Text)
	assert.Len(t, h.Messages(), before+2)

	h.catalog.featured = func(ctx context.Context) ([]display.Book, error) {
		panic("nil map")
	}
	reply = h.send(t, "best sellers")
	assert.Equal(t, apology, reply.Text)
	assert.False(t, h.Busy())
}

func TestNewerMessageSupersedesDispatch(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	h.catalog.search = func(ctx context.Context, q string) ([]display.Book, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- h.Send(context.Background(), "tìm sách Tắt Đèn") }()
	<-started
	assert.True(t, h.Busy())

	require.NoError(t, h.Send(context.Background(), "best sellers"))
	assert.ErrorIs(t, <-errCh, ErrSuperseded)
	assert.False(t, h.Busy())

	msgs := h.Messages()
	require.Len(t, msgs, 2+3)
	assert.Equal(t, "tìm sách Tắt Đèn", msgs[2].Text)
	assert.Equal(t, "best sellers", msgs[3].Text)
	assert.Equal(t, KindBookList, msgs[4].Kind)
	assert.Equal(t, []display.Book{{ID: "9", Title: "Nhà Giả Kim"}}, msgs[4].Payload)
}

func TestCallerCancellationAppendsNothing(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.catalog.featured = func(context.Context) ([]display.Book, error) {
		cancel()
		return nil, context.Canceled
	}

	assert.ErrorIs(t, h.Send(ctx, "best sellers"), context.Canceled)
	assert.Len(t, h.Messages(), 3)
	assert.False(t, h.Busy())
}

// pagedOrders serves page 1 from memory and blocks on every other call
// until the request context ends.
type pagedOrders struct {
	first payload.Value
	block bool
}

func (p *pagedOrders) ListOrders(ctx context.Context, page int) (payload.Value, error) {
	if page == 1 && !p.block {
		return p.first, nil
	}
	<-ctx.Done()
	return payload.Null(), ctx.Err()
}

func (p *pagedOrders) GetOrder(ctx context.Context, id string) (payload.Value, error) {
	<-ctx.Done()
	return payload.Null(), ctx.Err()
}

func TestDeadlineDuringDispatchAnswersOnce(t *testing.T) {
	first, err := payload.Decode([]byte(`{"data":[{"code":"ORD-X1"}],"meta":{"last_page":3}}`))
	require.NoError(t, err)

	tests := []struct {
		name  string
		setup func(h *harness)
		text  string
		check func(t *testing.T, reply Message)
	}{
		{
			name: "later page times out",
			setup: func(h *harness) {
				h.deps.Orders = resolver.New(&pagedOrders{first: first}, resolver.Config{}, nil)
			},
			text: "check ORD-AB12 please",
			check: func(t *testing.T, reply Message) {
				assert.Contains(t, reply.Text, "couldn't find order ORD-AB12")
			},
		},
		{
			name: "first page times out",
			setup: func(h *harness) {
				h.deps.Orders = resolver.New(&pagedOrders{block: true}, resolver.Config{}, nil)
			},
			text: "check ORD-AB12 please",
			check: func(t *testing.T, reply Message) {
				assert.Equal(t, historyUnavailable, reply.Text)
			},
		},
		{
			name: "catalog times out",
			setup: func(h *harness) {
				h.catalog.featured = func(ctx context.Context) ([]display.Book, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				}
			},
			text: "best sellers",
			check: func(t *testing.T, reply Message) {
				assert.Equal(t, apology, reply.Text)
			},
		},
		{
			name: "assistant times out",
			setup: func(h *harness) {
				h.deps.Assistant = assistantFunc(func(ctx context.Context, _ []assistant.Turn, _ string) (string, error) {
					<-ctx.Done()
					return "", ctx.Err()
				})
			},
			text: "unintelligible gibberish",
			check: func(t *testing.T, reply Message) {
				assert.Equal(t, KindQuickReplies, reply.Kind)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			require.NoError(t, h.Send(ctx, tt.text))

			msgs := h.Messages()
			require.Len(t, msgs, 4)
			assert.Equal(t, tt.text, msgs[2].Text)
			assert.Equal(t, RoleAssistant, msgs[3].Role)
			assert.Equal(t, 3, assistantCount(msgs))
			tt.check(t, msgs[3])
			assert.False(t, h.Busy())
		})
	}
}

func TestAIFallback(t *testing.T) {
	h := newHarness(t)
	reply := h.send(t, "unintelligible gibberish")
	assert.Equal(t, KindQuickReplies, reply.Kind)

	var seen []assistant.Turn
	h.deps.Assistant = assistantFunc(func(ctx context.Context, history []assistant.Turn, utterance string) (string, error) {
		seen = history
		return "We are open 8am to 10pm.", nil
	})
	reply = h.send(t, "when do you open")
	assert.Equal(t, "We are open 8am to 10pm.", reply.Text)
	require.NotEmpty(t, seen)
	last := seen[len(seen)-1]
	assert.Equal(t, "unintelligible gibberish", last.Text)
	assert.True(t, last.FromUser)

	h.deps.Assistant = assistantFunc(func(context.Context, []assistant.Turn, string) (string, error) {
		return "", errors.New("rate limited")
	})
	reply = h.send(t, "hmm")
	assert.Equal(t, KindQuickReplies, reply.Kind)
}

func TestReminder(t *testing.T) {
	h := newHarness(t)

	reply := h.send(t, "remind me to read in 20 minutes")
	assert.Contains(t, reply.Text, "20 minutes")
	require.Len(t, h.timers, 1)
	assert.Equal(t, 20*time.Minute, h.timers[0].d)

	h.timers[0].fire()
	last := h.Messages()[len(h.Messages())-1]
	assert.Contains(t, last.Text, "Reading time")

	h.send(t, "nhắc tôi đọc sách sau 2 giờ")
	h.send(t, "remind me")
	require.Len(t, h.timers, 3)
	assert.Equal(t, 2*time.Hour, h.timers[1].d)
	assert.True(t, h.timers[1].stopped)
	assert.Equal(t, 30*time.Minute, h.timers[2].d)

	// a replaced timer that fires anyway is ignored
	n := len(h.Messages())
	h.timers[1].fire()
	assert.Len(t, h.Messages(), n)

	h.Reset()
	assert.True(t, h.timers[2].stopped)
	h.timers[2].fire()
	assert.Len(t, h.Messages(), 2)
}

func TestParseDelay(t *testing.T) {
	cfg := DefaultReminderConfig()
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"remind me in 20 minutes", 20 * time.Minute},
		{"in 1 min", time.Minute},
		{"remind me in 2 hours", 2 * time.Hour},
		{"3h", 3 * time.Hour},
		{"sau 15 phút", 15 * time.Minute},
		{"1 tiếng nữa", time.Hour},
		{"remind me", 30 * time.Minute},
		{"in 0 minutes", time.Minute},
		{"in 90 hours", 24 * time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseDelay(tt.in, cfg), tt.in)
	}
	assert.Equal(t, "1 hour", formatDelay(time.Hour))
	assert.Equal(t, "90 minutes", formatDelay(90*time.Minute))
}

func TestSubmitForm(t *testing.T) {
	h := newHarness(t)
	h.support.On("Submit", mock.Anything, mock.MatchedBy(func(f support.Form) bool { return f.Kind == support.FormContact })).
		Return(nil).Once()
	h.support.On("Submit", mock.Anything, mock.MatchedBy(func(f support.Form) bool { return f.Kind == support.FormFeedback })).
		Return(errors.New("503")).Once()

	ctx := context.Background()
	require.NoError(t, h.SubmitForm(ctx, support.Form{Kind: support.FormContact, Email: "a@b.vn", Message: "Call me"}))
	msgs := h.Messages()
	assert.Contains(t, msgs[len(msgs)-1].Text, "get back to you")

	require.NoError(t, h.SubmitForm(ctx, support.Form{Kind: support.FormFeedback, Message: "Nice"}))
	msgs = h.Messages()
	assert.Contains(t, msgs[len(msgs)-1].Text, "couldn't send")

	assert.Error(t, h.SubmitForm(ctx, support.Form{Kind: support.FormContact}))
	h.support.AssertExpectations(t)
}

func TestClose(t *testing.T) {
	h := newHarness(t)
	h.send(t, "remind me in 5 minutes")

	h.Close()
	h.Close()
	assert.True(t, h.timers[0].stopped)
	assert.Equal(t, []string{"conv-1:close:4"}, h.archived)

	assert.ErrorIs(t, h.Send(context.Background(), "hello"), ErrClosed)
	assert.ErrorIs(t, h.SubmitForm(context.Background(), support.Form{Kind: support.FormContact, Message: "x"}), ErrClosed)

	h.Reset()
	assert.Len(t, h.Messages(), 4)
}
