package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storebot/pkg/payload"
)

type fakeSource struct {
	calls   atomic.Int32
	gate    chan struct{}
	err     error
	lastArg atomic.Value
}

func (f *fakeSource) respond(arg string) (payload.Value, error) {
	f.calls.Add(1)
	f.lastArg.Store(arg)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return payload.Null(), f.err
	}
	return payload.Decode([]byte(`{"data":{"items":[
		{"id":1,"title":"Tắt Đèn","author":"Ngô Tất Tố","price":"85.000đ"},
		{"id":2,"title":"Số Đỏ","author":"Vũ Trọng Phụng","price":99000},
		{"id":3,"title":"Chí Phèo","price":50000}
	]}}`))
}

func (f *fakeSource) SearchBooks(ctx context.Context, q string) (payload.Value, error) {
	return f.respond(q)
}

func (f *fakeSource) BooksByCategory(ctx context.Context, c string) (payload.Value, error) {
	return f.respond(c)
}

func (f *fakeSource) BooksByAuthor(ctx context.Context, a string) (payload.Value, error) {
	return f.respond(a)
}

func (f *fakeSource) FeaturedBooks(ctx context.Context) (payload.Value, error) {
	return f.respond("")
}

func newService(t *testing.T, src Source, cfg Config) *Service {
	t.Helper()
	svc, err := New(context.Background(), src, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestSearchNormalizesAndCaps(t *testing.T) {
	src := &fakeSource{}
	svc := newService(t, src, Config{MaxResults: 2})

	books, err := svc.Search(context.Background(), "văn học")
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Tắt Đèn", books[0].Title)
	assert.Equal(t, int64(85000), books[0].Price)
	assert.Equal(t, "văn học", src.lastArg.Load())
}

func TestCacheHitsAreFoldInsensitive(t *testing.T) {
	src := &fakeSource{}
	svc := newService(t, src, Config{})
	ctx := context.Background()

	_, err := svc.ByAuthor(ctx, "Nam Cao")
	require.NoError(t, err)
	_, err = svc.ByAuthor(ctx, "nam  cao")
	require.NoError(t, err)
	_, err = svc.ByCategory(ctx, "Nam Cao")
	require.NoError(t, err)

	assert.Equal(t, int32(2), src.calls.Load(), "author hit cached, category is a separate key")
}

func TestErrorsAreNotCached(t *testing.T) {
	src := &fakeSource{err: errors.New("502")}
	svc := newService(t, src, Config{})

	_, err := svc.Featured(context.Background())
	assert.Error(t, err)

	src.err = nil
	books, err := svc.Featured(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, books)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	svc := newService(t, src, Config{})

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			books, err := svc.Featured(context.Background())
			if err == nil {
				results[i] = len(books)
			}
		}(i)
	}

	assert.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
	for _, n := range results {
		assert.Equal(t, 3, n)
	}
}

func TestCallerCancellation(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	svc := newService(t, src, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Search(ctx, "slow")
		done <- err
	}()

	assert.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// the detached fetch still completes and fills the cache
	close(src.gate)
	assert.Eventually(t, func() bool {
		books, err := svc.Search(context.Background(), "slow")
		return err == nil && len(books) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), src.calls.Load())
}
