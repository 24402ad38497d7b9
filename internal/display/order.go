// Package display turns raw, loosely-shaped storefront records into the view
// models the assistant renders. Nothing in here returns an error: every field
// has a terminal default.
package display

import (
	"strings"
	"time"

	"storebot/pkg/payload"
)

// Order is the canonical, UI-ready view of a raw order record.
type Order struct {
	ID            string     `json:"id"`
	Code          string     `json:"code"`
	Status        string     `json:"status"`
	StatusLabel   string     `json:"status_label"`
	PaymentStatus string     `json:"payment_status"`
	PaymentLabel  string     `json:"payment_label"`
	Total         int64      `json:"total"`
	ItemCount     int        `json:"item_count"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

// SyntheticCodePrefix prefixes codes synthesized from the record id.
const SyntheticCodePrefix = "ORD-"

var (
	OrderIDFields      = []string{"id", "order_id", "orderId", "_id"}
	OrderCodeFields    = []string{"code", "order_code", "order_number", "reference", "reference_code", "number"}
	OrderStatusFields  = []string{"status", "order_status", "orderStatus", "state"}
	PaymentStatusField = []string{"payment_status", "paymentStatus", "payment_state", "payment"}
	PaidFlagFields     = []string{"is_paid", "paid", "isPaid"}
	OrderTotalFields   = []string{"total", "total_amount", "totalAmount", "grand_total", "total_price", "amount", "price"}
	ItemCountFields    = []string{"item_count", "items_count", "itemCount", "total_items", "quantity"}
	ItemsFields        = []string{"items", "order_items", "orderItems", "details", "products"}
	CreatedAtFields    = []string{"created_at", "createdAt", "order_date", "orderDate", "date"}
)

var orderStatusLabels = map[string]string{
	"pending":          "Pending confirmation",
	"new":              "Pending confirmation",
	"awaiting":         "Pending confirmation",
	"pending_payment":  "Awaiting payment",
	"awaiting_payment": "Awaiting payment",
	"confirmed":        "Confirmed",
	"processing":       "Processing",
	"packing":          "Processing",
	"shipping":         "Shipping",
	"shipped":          "Shipping",
	"in_transit":       "Shipping",
	"delivering":       "Shipping",
	"delivered":        "Delivered",
	"completed":        "Completed",
	"done":             "Completed",
	"cancelled":        "Cancelled",
	"canceled":         "Cancelled",
	"returned":         "Returned",
	"refunded":         "Refunded",
	"failed":           "Failed",

	"chờ xác nhận": "Pending confirmation",
	"đang xử lý":   "Processing",
	"đang giao":    "Shipping",
	"đã giao":      "Delivered",
	"hoàn thành":   "Completed",
	"đã hủy":       "Cancelled",
}

var paymentStatusLabels = map[string]string{
	"paid":      "Paid",
	"success":   "Paid",
	"succeeded": "Paid",
	"completed": "Paid",
	"unpaid":    "Unpaid",
	"pending":   "Awaiting payment",
	"awaiting":  "Awaiting payment",
	"failed":    "Payment failed",
	"refunded":  "Refunded",
	"cod":       "Cash on delivery",

	"đã thanh toán":   "Paid",
	"chưa thanh toán": "Unpaid",
}

// StatusLabel maps a raw order status to its label. Unknown values pass
// through verbatim.
func StatusLabel(raw string) string {
	return lookupLabel(orderStatusLabels, raw)
}

// PaymentLabel maps a raw payment status to its label. Unknown values pass
// through verbatim.
func PaymentLabel(raw string) string {
	return lookupLabel(paymentStatusLabels, raw)
}

func lookupLabel(table map[string]string, raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if label, ok := table[key]; ok {
		return label
	}
	if label, ok := table[strings.NewReplacer("-", "_", " ", "_").Replace(key)]; ok {
		return label
	}
	return raw
}

// NormalizeOrder maps one raw record onto Order.
func NormalizeOrder(rec payload.Value) Order {
	o := Order{
		ID: firstString(rec, OrderIDFields),
	}

	o.Code = firstString(rec, OrderCodeFields)
	if o.Code == "" {
		o.Code = SyntheticCodePrefix + o.ID
	}

	o.Status = firstString(rec, OrderStatusFields)
	o.StatusLabel = StatusLabel(o.Status)

	o.PaymentStatus = firstString(rec, PaymentStatusField)
	if o.PaymentStatus == "" {
		if flag, ok := firstPresent(rec, PaidFlagFields); ok {
			if paid, ok := flag.AsBool(); ok {
				o.PaymentStatus = "unpaid"
				if paid {
					o.PaymentStatus = "paid"
				}
			}
		}
	}
	o.PaymentLabel = PaymentLabel(o.PaymentStatus)

	if v, ok := firstPresent(rec, OrderTotalFields); ok {
		o.Total = money(v)
	}

	o.ItemCount = itemCount(rec)

	if v, ok := firstPresent(rec, CreatedAtFields); ok {
		o.CreatedAt = timestamp(v)
	}
	return o
}

func itemCount(rec payload.Value) int {
	for _, name := range ItemCountFields {
		if v, ok := rec.Get(name); ok && !v.IsNull() {
			if n, ok := count(v); ok {
				return n
			}
		}
	}
	for _, name := range ItemsFields {
		if v, ok := rec.Get(name); ok && v.IsArray() {
			return v.Len()
		}
	}
	return 0
}

// NormalizeOrders normalizes every object record of a listing.
func NormalizeOrders(records []payload.Value) []Order {
	out := make([]Order, 0, len(records))
	for _, rec := range records {
		if rec.IsObject() {
			out = append(out, NormalizeOrder(rec))
		}
	}
	return out
}
