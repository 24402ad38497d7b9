package intent

import (
	"regexp"
	"strings"

	"storebot/pkg/textnorm"
)

// Rule routes utterances matching Pattern to Intent. Patterns run against
// the folded utterance: lower-case, no diacritics, single spaces.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Intent  Intent
}

// DefaultRules is the production rule table. Order matters: the first rule
// that matches wins, so specific lookups sit above generic order keywords.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:    "minigame",
			Pattern: regexp.MustCompile(`\b(mini ?game|guess the (book|quote)|quote game|doan (sach|ten sach|trich dan)|choi game|play( a)? game)\b`),
			Intent:  MiniGame,
		},
		{
			Name:    "reminder",
			Pattern: regexp.MustCompile(`\b(remind( me)?|reminder|nhac (toi|nho|minh)|hen gio doc)\b`),
			Intent:  Remind,
		},
		{
			Name:    "bare-order-id",
			Pattern: regexp.MustCompile(`^#?\d{1,10}$`),
			Intent:  Track,
		},
		{
			Name:    "order-lookup",
			Pattern: regexp.MustCompile(`\b(track(ing)?|where is my (order|package|parcel)|order status|status of (my )?order|kiem tra don|tra cuu don|trang thai don|don hang (so|ma)|van don)\b|#\d{1,10}\b`),
			Intent:  Track,
		},
		{
			Name:    "order-history",
			Pattern: regexp.MustCompile(`\b(my orders?|last orders?|latest orders?|recent orders?|order history|previous orders?|don hang cua toi|don (hang )?gan (day|nhat)|lich su (don|mua))\b`),
			Intent:  OrdersLast,
		},
		{
			Name:    "promo",
			Pattern: regexp.MustCompile(`\b(coupons?|promo(tion)?s?|discounts?|vouchers?|sale off|ma giam( gia)?|khuyen mai|uu dai)\b`),
			Intent:  Promo,
		},
		{
			Name:    "trending",
			Pattern: regexp.MustCompile(`\b(trending|best ?sellers?|popular|featured|hot books?|top books?|ban chay|noi bat|thinh hanh)\b`),
			Intent:  Trending,
		},
		{
			Name:    "category",
			Pattern: regexp.MustCompile(`\b(categor(y|ies)|genres?|the loai|danh muc)\b`),
			Intent:  Category,
		},
		{
			Name:    "author",
			Pattern: regexp.MustCompile(`\b(books? by|written by|authors?|tac gia|nha van)\b`),
			Intent:  Author,
		},
		{
			Name:    "buy",
			Pattern: regexp.MustCompile(`\b(buy|purchase|search( for)?|find|looking for|recommend|mua|tim( sach| kiem)?|goi y)\b`),
			Intent:  Buy,
		},
		{
			Name:    "contact",
			Pattern: regexp.MustCompile(`\b(contact|hotline|phone number|talk to (a )?(human|staff|agent)|lien he|tong dai|nhan vien)\b`),
			Intent:  Contact,
		},
		{
			Name:    "feedback",
			Pattern: regexp.MustCompile(`\b(feedback|complain(t)?|suggestion|gop y|phan hoi|khieu nai)\b`),
			Intent:  Feedback,
		},
		{
			Name:    "faq",
			Pattern: regexp.MustCompile(`\b(faq|shipping|delivery (time|fee)|return policy|refund|exchange|payment methods?|how (do|can|to)|doi tra|hoan tien|van chuyen|phi ship|giao hang|thanh toan|cau hoi)\b`),
			Intent:  FAQ,
		},
	}
}

// Classifier is a stateless first-match-wins rule cascade.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier over rules, evaluated in slice order.
func NewClassifier(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

var defaultClassifier = NewClassifier(DefaultRules())

// Classify runs the default rule table.
func Classify(utterance string) Intent {
	return defaultClassifier.Classify(utterance)
}

// Rules returns a copy of the table, in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify always returns a valid intent; AI when nothing matches. A pasted
// order code routes to Track before any rule is consulted.
func (c *Classifier) Classify(utterance string) Intent {
	if _, ok := ExtractOrderCode(utterance); ok {
		return Track
	}
	folded := textnorm.Fold(utterance)
	if folded == "" {
		return AI
	}
	for _, r := range c.rules {
		if r.Pattern.MatchString(folded) {
			return r.Intent
		}
	}
	return AI
}

var fillerWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "some": {}, "for": {}, "about": {}, "of": {},
	"me": {}, "please": {}, "book": {}, "books": {}, "called": {}, "named": {},
	"sach": {}, "cuon": {}, "quyen": {}, "ve": {}, "cua": {}, "giup": {}, "toi": {},
	"minh": {}, "cho": {}, "nhe": {}, "voi": {}, "la": {}, "i": {}, "want": {}, "to": {},
}

// Subject returns what follows the keyword that selected in, with the
// original spelling kept, e.g. "tìm sách Tắt Đèn" -> "Tắt Đèn". Empty when
// nothing meaningful follows.
func (c *Classifier) Subject(utterance string, in Intent) string {
	words := strings.Fields(utterance)
	if len(words) == 0 {
		return ""
	}
	folded := make([]string, len(words))
	for i, w := range words {
		folded[i] = textnorm.Fold(w)
	}
	joined := strings.Join(folded, " ")

	end := -1
	for _, r := range c.rules {
		if r.Intent != in {
			continue
		}
		if locs := r.Pattern.FindAllStringIndex(joined, -1); len(locs) > 0 {
			end = locs[len(locs)-1][1]
			break
		}
	}
	if end < 0 {
		return ""
	}

	// first word that starts at or after the keyword's end
	start, offset := len(words), 0
	for i, fw := range folded {
		if offset >= end {
			start = i
			break
		}
		offset += len(fw) + 1
	}

	rest := words[start:]
	for len(rest) > 0 {
		if _, filler := fillerWords[textnorm.Fold(textnorm.Trim(rest[0]))]; !filler {
			break
		}
		rest = rest[1:]
	}
	return textnorm.Trim(strings.Join(rest, " "))
}

// Subject runs the default classifier's Subject.
func Subject(utterance string, in Intent) string {
	return defaultClassifier.Subject(utterance, in)
}
