// Package intent maps raw shopper utterances to one named intent through an
// ordered, data-driven rule table.
package intent

// Intent is the classified purpose of an utterance.
type Intent string

const (
	Track      Intent = "track"
	OrdersLast Intent = "orders.last"
	Buy        Intent = "buy"
	Category   Intent = "category"
	Author     Intent = "author"
	Trending   Intent = "trending"
	FAQ        Intent = "faq"
	Promo      Intent = "promo"
	Contact    Intent = "contact"
	Feedback   Intent = "feedback"
	MiniGame   Intent = "minigame"
	Remind     Intent = "remind"
	AI         Intent = "ai"
)

// All lists every intent, catch-all last.
var All = []Intent{
	Track, OrdersLast, Buy, Category, Author, Trending, FAQ,
	Promo, Contact, Feedback, MiniGame, Remind, AI,
}

func (i Intent) String() string {
	return string(i)
}

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	for _, known := range All {
		if i == known {
			return true
		}
	}
	return false
}
