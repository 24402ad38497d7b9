package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storebot/pkg/payload"
)

func record(t *testing.T, raw string) payload.Value {
	t.Helper()
	v, err := payload.Decode([]byte(raw))
	require.NoError(t, err)
	return v
}

func TestNormalizeOrderEmptyRecord(t *testing.T) {
	o := NormalizeOrder(record(t, `{}`))

	assert.Equal(t, int64(0), o.Total)
	assert.Equal(t, 0, o.ItemCount)
	assert.True(t, len(o.Code) >= len(SyntheticCodePrefix))
	assert.Equal(t, SyntheticCodePrefix, o.Code[:len(SyntheticCodePrefix)])
	assert.Nil(t, o.CreatedAt)
	assert.Equal(t, "", o.StatusLabel)
}

func TestNormalizeOrderDecoratedTotal(t *testing.T) {
	o := NormalizeOrder(record(t, `{"total":"200.000 đ"}`))
	assert.Equal(t, int64(200000), o.Total)
}

func TestNormalizeOrderTotals(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{`{"total": 150000}`, 150000},
		{`{"total": 99.6}`, 100},
		{`{"total": -5}`, 0},
		{`{"total": "free"}`, 0},
		{`{"total": null, "total_amount": "45,000₫"}`, 45000},
		{`{"grandTotal": 1, "grand_total": {"amount": "12.500"}}`, 12500},
		{`{"TOTAL": "7"}`, 7},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeOrder(record(t, tt.raw)).Total)
		})
	}
}

func TestNormalizeOrderFields(t *testing.T) {
	o := NormalizeOrder(record(t, `{
		"id": 42,
		"order_number": "bk-2024-0042",
		"order_status": "SHIPPING",
		"is_paid": true,
		"items": [{"sku":"a"},{"sku":"b"},{"sku":"c"}],
		"created_at": "2024-05-01T10:00:00Z"
	}`))

	assert.Equal(t, "42", o.ID)
	assert.Equal(t, "bk-2024-0042", o.Code)
	assert.Equal(t, "SHIPPING", o.Status)
	assert.Equal(t, "Shipping", o.StatusLabel)
	assert.Equal(t, "Paid", o.PaymentLabel)
	assert.Equal(t, 3, o.ItemCount)
	require.NotNil(t, o.CreatedAt)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), o.CreatedAt.UTC())
}

func TestNormalizeOrderSynthesizedCode(t *testing.T) {
	o := NormalizeOrder(record(t, `{"id": 7, "status": "delivered"}`))
	assert.Equal(t, "ORD-7", o.Code)
	assert.Equal(t, "Delivered", o.StatusLabel)
}

func TestNormalizeOrderItemCountPrecedence(t *testing.T) {
	o := NormalizeOrder(record(t, `{"item_count": "5", "items": [1]}`))
	assert.Equal(t, 5, o.ItemCount)

	o = NormalizeOrder(record(t, `{"item_count": "n/a", "items": [1, 2]}`))
	assert.Equal(t, 2, o.ItemCount)
}

func TestNormalizeOrderUnixTimestamps(t *testing.T) {
	o := NormalizeOrder(record(t, `{"created_at": 1714557600}`))
	require.NotNil(t, o.CreatedAt)
	assert.Equal(t, int64(1714557600), o.CreatedAt.Unix())

	o = NormalizeOrder(record(t, `{"createdAt": 1714557600000}`))
	require.NotNil(t, o.CreatedAt)
	assert.Equal(t, int64(1714557600), o.CreatedAt.Unix())

	o = NormalizeOrder(record(t, `{"created_at": "yesterday"}`))
	assert.Nil(t, o.CreatedAt)
}

func TestStatusLabels(t *testing.T) {
	assert.Equal(t, "Cancelled", StatusLabel("Canceled"))
	assert.Equal(t, "Shipping", StatusLabel("in-transit"))
	assert.Equal(t, "Delivered", StatusLabel("Đã giao"))
	assert.Equal(t, "on_hold_by_warehouse", StatusLabel("on_hold_by_warehouse"))
	assert.Equal(t, "Cash on delivery", PaymentLabel("COD"))
	assert.Equal(t, "Mystery", PaymentLabel("Mystery"))
}

func TestExtractDigits(t *testing.T) {
	assert.Equal(t, int64(200000), ExtractDigits("200.000 đ"))
	assert.Equal(t, int64(0), ExtractDigits(""))
	assert.Equal(t, int64(0), ExtractDigits("đ"))
	assert.Equal(t, int64(1234), ExtractDigits("$12.34"))
}

func TestNormalizeBook(t *testing.T) {
	b := NormalizeBook(record(t, `{
		"_id": "b1",
		"name": "Dế Mèn Phiêu Lưu Ký",
		"authors": [{"name": "Tô Hoài"}, "Illustrator"],
		"price": "85.000đ",
		"sale_price": null,
		"slug": "de-men"
	}`))

	assert.Equal(t, "b1", b.ID)
	assert.Equal(t, "Dế Mèn Phiêu Lưu Ký", b.Title)
	assert.Equal(t, "Tô Hoài, Illustrator", b.Author)
	assert.Equal(t, int64(85000), b.Price)
	assert.Equal(t, "de-men", b.Slug)

	empty := NormalizeBook(record(t, `{"author": {"full_name": "Nam Cao"}}`))
	assert.Equal(t, UntitledBook, empty.Title)
	assert.Equal(t, "Nam Cao", empty.Author)
}

func TestNormalizeFAQsAndCoupons(t *testing.T) {
	faqs := NormalizeFAQs([]payload.Value{
		record(t, `{"question": "Ship time?", "answer": "2-4 days"}`),
		record(t, `{"title": "No answer"}`),
	})
	require.Len(t, faqs, 1)
	assert.Equal(t, "2-4 days", faqs[0].Answer)

	coupons := NormalizeCoupons([]payload.Value{
		record(t, `{"code": "read10", "percent": 10, "end_date": "2030-01-31"}`),
		record(t, `{"coupon_code": "FREESHIP", "discount": "30000"}`),
		record(t, `{"voucher": "HALF", "value": "50%"}`),
		record(t, `{"description": "code missing"}`),
	})
	require.Len(t, coupons, 3)
	assert.Equal(t, "READ10", coupons[0].Code)
	assert.Equal(t, "10%", coupons[0].Discount)
	require.NotNil(t, coupons[0].ExpiresAt)
	assert.Equal(t, "30.000 đ", coupons[1].Discount)
	assert.Equal(t, "50%", coupons[2].Discount)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "0 đ", FormatMoney(0))
	assert.Equal(t, "999 đ", FormatMoney(999))
	assert.Equal(t, "1.000 đ", FormatMoney(1000))
	assert.Equal(t, "1.250.000 đ", FormatMoney(1250000))
	assert.Equal(t, "0 đ", FormatMoney(-3))
}
