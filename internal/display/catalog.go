package display

import (
	"strconv"
	"strings"
	"time"

	"storebot/pkg/payload"
)

// Book is a catalog entry as rendered in a book-list message.
type Book struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author,omitempty"`
	Price    int64  `json:"price"`
	Slug     string `json:"slug,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// FAQ is one question/answer pair.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Coupon is a promotion code the shopper can apply at checkout.
type Coupon struct {
	Code        string     `json:"code"`
	Description string     `json:"description,omitempty"`
	Discount    string     `json:"discount,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

var (
	bookIDFields     = []string{"id", "book_id", "bookId", "_id", "sku"}
	bookTitleFields  = []string{"title", "name", "book_title", "bookTitle"}
	bookAuthorFields = []string{"author", "author_name", "authorName", "authors", "writer"}
	bookPriceFields  = []string{"sale_price", "salePrice", "final_price", "price", "unit_price", "original_price"}
	bookSlugFields   = []string{"slug", "handle", "url_key"}
	bookImageFields  = []string{"image", "image_url", "imageUrl", "thumbnail", "cover", "cover_url"}

	faqQuestionFields = []string{"question", "q", "title"}
	faqAnswerFields   = []string{"answer", "a", "content", "body"}

	couponCodeFields    = []string{"code", "coupon_code", "couponCode", "voucher"}
	couponDescFields    = []string{"description", "desc", "title", "name"}
	couponPercentFields = []string{"percent", "discount_percent", "percentage"}
	couponAmountFields  = []string{"discount", "discount_amount", "value", "amount"}
	couponExpiresFields = []string{"expires_at", "expiresAt", "end_date", "endDate", "expired_at", "valid_until"}
)

// UntitledBook is shown when a catalog record carries no usable title.
const UntitledBook = "Untitled"

// NormalizeBook maps one raw catalog record onto Book.
func NormalizeBook(rec payload.Value) Book {
	b := Book{
		ID:       firstString(rec, bookIDFields),
		Title:    firstString(rec, bookTitleFields),
		Slug:     firstString(rec, bookSlugFields),
		ImageURL: firstString(rec, bookImageFields),
	}
	if b.Title == "" {
		b.Title = UntitledBook
	}
	b.Author = author(rec)
	if v, ok := firstPresent(rec, bookPriceFields); ok {
		b.Price = money(v)
	}
	return b
}

// author handles plain strings, {name} objects and arrays of either.
func author(rec payload.Value) string {
	for _, name := range bookAuthorFields {
		v, ok := rec.Get(name)
		if !ok || v.IsNull() {
			continue
		}
		if v.IsArray() {
			names := make([]string, 0, v.Len())
			for _, item := range v.Items() {
				if s := scalarOrName(item); s != "" {
					names = append(names, s)
				}
			}
			if len(names) > 0 {
				return strings.Join(names, ", ")
			}
			continue
		}
		if s := scalarOrName(v); s != "" {
			return s
		}
	}
	return ""
}

func scalarOrName(v payload.Value) string {
	if s, ok := v.AsString(); ok {
		return strings.TrimSpace(s)
	}
	return firstString(v, []string{"name", "full_name", "fullName"})
}

// NormalizeBooks normalizes every object record of a listing.
func NormalizeBooks(records []payload.Value) []Book {
	out := make([]Book, 0, len(records))
	for _, rec := range records {
		if rec.IsObject() {
			out = append(out, NormalizeBook(rec))
		}
	}
	return out
}

// NormalizeFAQs keeps only entries that have both a question and an answer.
func NormalizeFAQs(records []payload.Value) []FAQ {
	out := make([]FAQ, 0, len(records))
	for _, rec := range records {
		f := FAQ{
			Question: firstString(rec, faqQuestionFields),
			Answer:   firstString(rec, faqAnswerFields),
		}
		if f.Question != "" && f.Answer != "" {
			out = append(out, f)
		}
	}
	return out
}

// NormalizeCoupon maps one raw coupon record onto Coupon.
func NormalizeCoupon(rec payload.Value) Coupon {
	c := Coupon{
		Code:        strings.ToUpper(firstString(rec, couponCodeFields)),
		Description: firstString(rec, couponDescFields),
	}
	if v, ok := firstPresent(rec, couponPercentFields); ok {
		if pct, ok := v.AsFloat(); ok && pct > 0 {
			c.Discount = strconv.FormatFloat(pct, 'f', -1, 64) + "%"
		}
	}
	if c.Discount == "" {
		if v, ok := firstPresent(rec, couponAmountFields); ok {
			if s, ok := v.AsString(); ok && strings.HasSuffix(strings.TrimSpace(s), "%") {
				c.Discount = strings.TrimSpace(s)
			} else if amount := money(v); amount > 0 {
				c.Discount = FormatMoney(amount)
			}
		}
	}
	if v, ok := firstPresent(rec, couponExpiresFields); ok {
		c.ExpiresAt = timestamp(v)
	}
	return c
}

// NormalizeCoupons drops records without a code.
func NormalizeCoupons(records []payload.Value) []Coupon {
	out := make([]Coupon, 0, len(records))
	for _, rec := range records {
		if c := NormalizeCoupon(rec); c.Code != "" {
			out = append(out, c)
		}
	}
	return out
}

// FormatMoney renders minor units the way the storefront prints prices,
// e.g. 200000 -> "200.000 đ".
func FormatMoney(amount int64) string {
	if amount < 0 {
		amount = 0
	}
	digits := strconv.FormatInt(amount, 10)
	var sb strings.Builder
	for i := 0; i < len(digits); i++ {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteByte('.')
		}
		sb.WriteByte(digits[i])
	}
	sb.WriteString(" đ")
	return sb.String()
}
