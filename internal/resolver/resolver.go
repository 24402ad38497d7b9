// Package resolver locates a shopper's order by code or numeric id on top of
// the paginated, loosely-shaped order listing.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"storebot/internal/display"
	"storebot/internal/intent"
	"storebot/internal/monitor"
	"storebot/pkg/log"
	"storebot/pkg/payload"
)

var (
	// ErrHistoryUnavailable means the listing could not be read at all,
	// usually an expired login. Distinct from ErrOrderNotFound.
	ErrHistoryUnavailable = errors.New("order history unavailable")
	// ErrOrderNotFound means the scanned pages did not contain the order.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidOrderID is returned for ids that are not 1-10 digits.
	ErrInvalidOrderID = errors.New("invalid order id")
)

const (
	DefaultMaxPages    = 5
	DefaultRecentLimit = 3
)

// OrderSource is the slice of the storefront API the resolver reads.
type OrderSource interface {
	ListOrders(ctx context.Context, page int) (payload.Value, error)
	GetOrder(ctx context.Context, id string) (payload.Value, error)
}

// Config tunes a Resolver.
type Config struct {
	MaxPages    int
	RecentLimit int
}

// Resolver finds orders. It holds no per-lookup state and is safe for
// concurrent use; each lookup keeps at most one request in flight.
type Resolver struct {
	source  OrderSource
	cfg     Config
	metrics *monitor.MetricsCollector
	tracer  oteltrace.Tracer
}

// New builds a Resolver. metrics may be nil.
func New(source OrderSource, cfg Config, metrics *monitor.MetricsCollector) *Resolver {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = DefaultRecentLimit
	}
	return &Resolver{
		source:  source,
		cfg:     cfg,
		metrics: metrics,
		tracer:  otel.Tracer("storebot/resolver"),
	}
}

// MaxPages is the configured traversal cap.
func (r *Resolver) MaxPages() int {
	return r.cfg.MaxPages
}

// FindOrderByCode scans the listing page by page for an exact match on the
// canonical code. maxPages <= 0 uses the configured cap.
//
// Page 1 failing yields ErrHistoryUnavailable. A later page failing ends the
// scan with ErrOrderNotFound: the pages already read are taken as the answer.
func (r *Resolver) FindOrderByCode(ctx context.Context, code string, maxPages int) (display.Order, error) {
	target := intent.CanonicalCode(code)
	if maxPages <= 0 {
		maxPages = r.cfg.MaxPages
	}

	ctx, span := r.tracer.Start(ctx, "resolver.FindOrderByCode",
		oteltrace.WithAttributes(
			attribute.String("order.code", target),
			attribute.Int("resolver.max_pages", maxPages),
		))
	defer span.End()

	order, pages, err := r.scan(ctx, target, maxPages)
	span.SetAttributes(attribute.Int("resolver.pages_fetched", pages))
	if err != nil && !errors.Is(err, ErrOrderNotFound) {
		monitor.RecordError(span, err)
	}
	r.metrics.RecordLookup("code", outcome(err), pages)
	return order, err
}

func (r *Resolver) scan(ctx context.Context, target string, maxPages int) (display.Order, int, error) {
	if target == "" {
		return display.Order{}, 0, ErrOrderNotFound
	}

	first, err := r.source.ListOrders(ctx, 1)
	if err != nil {
		if ctxErr := cancelled(ctx); ctxErr != nil {
			return display.Order{}, 1, ctxErr
		}
		return display.Order{}, 1, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
	}

	c := cursor{page: 1, lastPage: LastPage(first)}
	bound := min(maxPages, c.lastPage)

	records := payload.Records(first)
	if order, ok := match(records, target); ok {
		return order, c.page, nil
	}
	if len(records) == 0 {
		return display.Order{}, c.page, ErrOrderNotFound
	}

	for c.page < bound {
		if err := cancelled(ctx); err != nil {
			return display.Order{}, c.page, err
		}
		if ctx.Err() != nil {
			// out of time: the pages read so far are the answer
			break
		}
		c.page++

		page, err := r.source.ListOrders(ctx, c.page)
		if err != nil {
			if ctxErr := cancelled(ctx); ctxErr != nil {
				return display.Order{}, c.page, ctxErr
			}
			log.WithFields(log.Fields{
				"page":      c.page,
				"last_page": c.lastPage,
				"error":     err.Error(),
			}).Warn("Order listing page failed, ending scan")
			return display.Order{}, c.page, ErrOrderNotFound
		}

		records := payload.Records(page)
		monitor.AddSpanEvent(oteltrace.SpanFromContext(ctx), "resolver.page",
			attribute.Int("page", c.page),
			attribute.Int("records", len(records)))
		if order, ok := match(records, target); ok {
			return order, c.page, nil
		}
		if len(records) == 0 {
			// reported lastPage was optimistic
			break
		}
	}
	return display.Order{}, c.page, ErrOrderNotFound
}

// cursor tracks a traversal. lastPage is read once from page 1 and is a
// bound, not a promise.
type cursor struct {
	page     int
	lastPage int
}

// match returns the first record whose code, canonicalized, equals target.
// The returned order carries target as its code.
func match(records []payload.Value, target string) (display.Order, bool) {
	for _, rec := range records {
		for _, field := range display.OrderCodeFields {
			v, ok := rec.Get(field)
			if !ok {
				continue
			}
			s, ok := v.AsString()
			if !ok || intent.CanonicalCode(s) != target {
				continue
			}
			order := display.NormalizeOrder(rec)
			order.Code = target
			return order, true
		}
	}
	return display.Order{}, false
}

// FindOrderByID fetches one order directly. id must be 1-10 digits.
func (r *Resolver) FindOrderByID(ctx context.Context, id string) (display.Order, error) {
	id = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(id), "#"))
	if !intent.IsNumericID(id) {
		r.metrics.RecordLookup("id", "invalid", 0)
		return display.Order{}, ErrInvalidOrderID
	}

	ctx, span := r.tracer.Start(ctx, "resolver.FindOrderByID",
		oteltrace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := r.fetchByID(ctx, id)
	if err != nil && !errors.Is(err, ErrOrderNotFound) {
		monitor.RecordError(span, err)
	}
	r.metrics.RecordLookup("id", outcome(err), 1)
	return order, err
}

type notFounder interface {
	NotFound() bool
}

func (r *Resolver) fetchByID(ctx context.Context, id string) (display.Order, error) {
	v, err := r.source.GetOrder(ctx, id)
	if err != nil {
		if ctxErr := cancelled(ctx); ctxErr != nil {
			return display.Order{}, ctxErr
		}
		var nf notFounder
		if errors.As(err, &nf) && nf.NotFound() {
			return display.Order{}, ErrOrderNotFound
		}
		return display.Order{}, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
	}

	rec, ok := unwrapOrder(v)
	if !ok {
		return display.Order{}, ErrOrderNotFound
	}
	return display.NormalizeOrder(rec), nil
}

// unwrapOrder peels {data: ...} and {order: ...} envelopes, in any nesting,
// down to a non-empty object.
func unwrapOrder(v payload.Value) (payload.Value, bool) {
	for depth := 0; depth <= payload.DefaultMaxDepth; depth++ {
		if v.IsArray() {
			records := payload.Records(v)
			if len(records) == 0 {
				return payload.Null(), false
			}
			v = records[0]
			continue
		}
		if !v.IsObject() || v.Len() == 0 {
			return payload.Null(), false
		}
		inner, ok := v.Get("data")
		if !ok || inner.IsNull() {
			inner, ok = v.Get("order")
		}
		if !ok || inner.IsNull() || (!inner.IsObject() && !inner.IsArray()) {
			return v, true
		}
		v = inner
	}
	return v, v.IsObject() && v.Len() > 0
}

// RecentOrders returns up to limit orders from the first listing page, in
// listing order. limit <= 0 uses the configured default.
func (r *Resolver) RecentOrders(ctx context.Context, limit int) ([]display.Order, error) {
	if limit <= 0 {
		limit = r.cfg.RecentLimit
	}

	ctx, span := r.tracer.Start(ctx, "resolver.RecentOrders")
	defer span.End()

	first, err := r.source.ListOrders(ctx, 1)
	if err != nil {
		if ctxErr := cancelled(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		monitor.RecordError(span, err)
		r.metrics.RecordLookup("recent", "unavailable", 1)
		return nil, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
	}

	orders := display.NormalizeOrders(payload.Records(first))
	if len(orders) > limit {
		orders = orders[:limit]
	}
	r.metrics.RecordLookup("recent", "found", 1)
	return orders, nil
}

// cancelled returns ctx.Err() only when the caller cancelled. A passed
// deadline is a fetch failure like any other.
func cancelled(ctx context.Context) error {
	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "found"
	case errors.Is(err, ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, ErrHistoryUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidOrderID):
		return "invalid"
	default:
		return "cancelled"
	}
}
