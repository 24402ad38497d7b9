package conversation

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"storebot/internal/monitor"
	"storebot/pkg/log"
	"storebot/pkg/textnorm"
)

// Mini-game states and events.
const (
	gameNone  = "none"
	gameStep1 = "step1"
	gameStep2 = "step2"

	eventStart  = "start"
	eventMiss   = "miss"
	eventFinish = "finish"
)

// Quote is one round of the guess-the-book game.
type Quote struct {
	Text   string
	Answer string
	Hint   string
}

// DefaultQuotes are used when no quotes are configured.
var DefaultQuotes = []Quote{
	{Text: "Tôi sống độc lập từ thuở bé.", Answer: "Dế Mèn Phiêu Lưu Ký", Hint: "Tô Hoài"},
	{Text: "Hắn vừa đi vừa chửi.", Answer: "Chí Phèo", Hint: "Nam Cao"},
	{Text: "All happy families are alike; each unhappy family is unhappy in its own way.", Answer: "Anna Karenina", Hint: "Leo Tolstoy"},
	{Text: "Call me Ishmael.", Answer: "Moby Dick", Hint: "Herman Melville"},
	{Text: "It is a truth universally acknowledged, that a single man in possession of a good fortune, must be in want of a wife.", Answer: "Pride and Prejudice", Hint: "Jane Austen"},
}

var (
	exitWords = map[string]bool{"exit": true, "quit": true, "stop": true, "thoat": true, "ket thuc": true, "dung choi": true}
	skipWords = map[string]bool{"skip": true, "pass": true, "give up": true, "bo qua": true, "chiu": true}
)

// miniGame is the two-step guessing game. The zero state is none; it is
// not safe for concurrent use and is guarded by the controller's mutex.
type miniGame struct {
	fsm    *fsm.FSM
	quote  Quote
	reward string
}

func newMiniGame(reward string, metrics *monitor.MetricsCollector) *miniGame {
	g := &miniGame{reward: reward}
	g.fsm = fsm.NewFSM(
		gameNone,
		fsm.Events{
			{Name: eventStart, Src: []string{gameNone}, Dst: gameStep1},
			{Name: eventMiss, Src: []string{gameStep1}, Dst: gameStep2},
			{Name: eventFinish, Src: []string{gameStep1, gameStep2}, Dst: gameNone},
		},
		fsm.Callbacks{
			"enter_" + gameNone: func(_ context.Context, _ *fsm.Event) {
				g.quote = Quote{}
			},
			"enter_state": func(_ context.Context, e *fsm.Event) {
				metrics.RecordMiniGameEvent(e.Event)
			},
		},
	)
	return g
}

// Active reports whether a round is in progress.
func (g *miniGame) Active() bool {
	return !g.fsm.Is(gameNone)
}

// State is none, step1 or step2.
func (g *miniGame) State() string {
	return g.fsm.Current()
}

// Start begins a round with q and returns the prompt.
func (g *miniGame) Start(ctx context.Context, q Quote) string {
	if g.Active() {
		g.fire(ctx, eventFinish)
	}
	g.fire(ctx, eventStart)
	g.quote = q
	return fmt.Sprintf("Guess the book! \"%s\"\nType your answer, \"skip\" to reveal it or \"exit\" to stop.", q.Text)
}

// Play consumes one message while a round is active and returns the reply.
func (g *miniGame) Play(ctx context.Context, input string) string {
	guess := textnorm.Fold(textnorm.Trim(input))
	answer := g.quote.Answer

	switch {
	case exitWords[guess]:
		g.fire(ctx, eventFinish)
		return fmt.Sprintf("Game stopped. The answer was \"%s\". Come back anytime!", answer)
	case skipWords[guess]:
		g.fire(ctx, eventFinish)
		return fmt.Sprintf("The answer was \"%s\" by %s. Thanks for playing!", answer, g.hint())
	case g.correct(guess):
		g.fire(ctx, eventFinish)
		return fmt.Sprintf("Correct, it's \"%s\"! Your reward: use code %s at checkout.", answer, g.reward)
	case g.fsm.Is(gameStep1):
		g.fire(ctx, eventMiss)
		return fmt.Sprintf("Not quite, try again! Hint: it was written by %s. Type \"skip\" to give up.", g.hint())
	default:
		g.fire(ctx, eventFinish)
		return fmt.Sprintf("Not this time. The answer was \"%s\". Better luck next round!", answer)
	}
}

// Stop abandons a round silently.
func (g *miniGame) Stop(ctx context.Context) {
	if g.Active() {
		g.fire(ctx, eventFinish)
	}
}

func (g *miniGame) correct(guess string) bool {
	answer := textnorm.Fold(g.quote.Answer)
	return answer != "" && guess != "" && (guess == answer || textnorm.Contains(guess, answer))
}

func (g *miniGame) hint() string {
	if g.quote.Hint == "" {
		return "a famous author"
	}
	return g.quote.Hint
}

func (g *miniGame) fire(ctx context.Context, event string) {
	// transitions are only fired from states that allow them
	if err := g.fsm.Event(context.WithoutCancel(ctx), event); err != nil {
		log.WithFields(log.Fields{
			"event": event,
			"state": g.fsm.Current(),
			"error": err.Error(),
		}).Error("Mini-game transition rejected")
	}
}
