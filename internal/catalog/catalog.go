// Package catalog serves book listings for the buy, category, author and
// trending intents, with a short-lived local cache in front of the backend.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"golang.org/x/sync/singleflight"

	"storebot/internal/display"
	"storebot/internal/monitor"
	"storebot/pkg/log"
	"storebot/pkg/payload"
	"storebot/pkg/textnorm"
)

// Source is the slice of the storefront API the catalog reads.
type Source interface {
	SearchBooks(ctx context.Context, query string) (payload.Value, error)
	BooksByCategory(ctx context.Context, category string) (payload.Value, error)
	BooksByAuthor(ctx context.Context, author string) (payload.Value, error)
	FeaturedBooks(ctx context.Context) (payload.Value, error)
}

// Config tunes the catalog cache.
type Config struct {
	// TTL is how long a listing is served from memory.
	TTL time.Duration
	// MaxSizeMB caps the cache; 0 means unbounded.
	MaxSizeMB int
	// MaxResults caps how many books one listing returns.
	MaxResults int
}

// Service is safe for concurrent use.
type Service struct {
	src        Source
	cache      *bigcache.BigCache
	group      singleflight.Group
	maxResults int
	metrics    *monitor.MetricsCollector
}

// New builds a catalog service. The cache's janitor goroutine stops when
// ctx is done or Close is called.
func New(ctx context.Context, src Source, cfg Config, metrics *monitor.MetricsCollector) (*Service, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}

	cacheCfg := bigcache.DefaultConfig(cfg.TTL)
	cacheCfg.Shards = 64
	cacheCfg.CleanWindow = cfg.TTL
	cacheCfg.HardMaxCacheSize = cfg.MaxSizeMB
	cacheCfg.Verbose = false

	cache, err := bigcache.New(ctx, cacheCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog cache: %w", err)
	}

	return &Service{
		src:        src,
		cache:      cache,
		maxResults: cfg.MaxResults,
		metrics:    metrics,
	}, nil
}

// Search runs a free-text search.
func (s *Service) Search(ctx context.Context, query string) ([]display.Book, error) {
	return s.list(ctx, "search", query, func(ctx context.Context) (payload.Value, error) {
		return s.src.SearchBooks(ctx, query)
	})
}

// ByCategory lists a category.
func (s *Service) ByCategory(ctx context.Context, category string) ([]display.Book, error) {
	return s.list(ctx, "category", category, func(ctx context.Context) (payload.Value, error) {
		return s.src.BooksByCategory(ctx, category)
	})
}

// ByAuthor lists an author's books.
func (s *Service) ByAuthor(ctx context.Context, author string) ([]display.Book, error) {
	return s.list(ctx, "author", author, func(ctx context.Context) (payload.Value, error) {
		return s.src.BooksByAuthor(ctx, author)
	})
}

// Featured lists trending books.
func (s *Service) Featured(ctx context.Context) ([]display.Book, error) {
	return s.list(ctx, "featured", "", func(ctx context.Context) (payload.Value, error) {
		return s.src.FeaturedBooks(ctx)
	})
}

// Close stops the cache janitor.
func (s *Service) Close() error {
	return s.cache.Close()
}

func cacheKey(kind, arg string) string {
	return kind + ":" + textnorm.Fold(arg)
}

// list serves from cache, otherwise fetches once for all concurrent callers
// asking for the same key. The shared fetch is detached from the first
// caller's cancellation so a superseded message does not fail the others.
func (s *Service) list(ctx context.Context, kind, arg string, fetch func(context.Context) (payload.Value, error)) ([]display.Book, error) {
	key := cacheKey(kind, arg)

	if raw, err := s.cache.Get(key); err == nil {
		var books []display.Book
		if err := json.Unmarshal(raw, &books); err == nil {
			s.metrics.RecordCache("hit")
			return books, nil
		}
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		log.WithFields(log.Fields{"key": key, "error": err.Error()}).Warn("Catalog cache read failed")
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		s.metrics.RecordCache("miss")
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		books := display.NormalizeBooks(payload.Records(v))
		if len(books) > s.maxResults {
			books = books[:s.maxResults]
		}
		if raw, err := json.Marshal(books); err == nil {
			if err := s.cache.Set(key, raw); err != nil {
				log.WithFields(log.Fields{"key": key, "error": err.Error()}).Warn("Catalog cache write failed")
			}
		}
		return books, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.metrics.RecordCache("shared")
		}
		return res.Val.([]display.Book), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
