package delivery

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/pixelforge/internal/models"
	"github.com/nkiryanov/pixelforge/internal/service/telegram"
)

type sent struct {
	chatID int64
	url    string
	at     time.Time
}

// Records every call, returns scripted errors first
type fakeSender struct {
	mu     sync.Mutex
	errs   []error
	calls  []sent
	called chan struct{}
}

func newFakeSender(errs ...error) *fakeSender {
	return &fakeSender{errs: errs, called: make(chan struct{}, 100)}
}

func (f *fakeSender) SendPhoto(ctx context.Context, chatID int64, photoURL string, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, sent{chatID: chatID, url: photoURL, at: time.Now()})
	f.called <- struct{}{}

	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeSender) Calls() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.calls...)
}

func waitCalls(t *testing.T, f *fakeSender, n int) {
	t.Helper()
	for range n {
		select {
		case <-f.called:
		case <-time.After(2 * time.Second):
			t.Fatalf("sender was not called %d times, calls: %d", n, len(f.Calls()))
		}
	}
}

func job(id int64) Job {
	return Job{ChatID: 7, Image: models.ImageRef{ID: id, URL: "https://img.test/" + strconv.FormatInt(id, 10) + ".png"}}
}

func TestDispatcher(t *testing.T) {
	t.Parallel()

	t.Run("delivers enqueued jobs", func(t *testing.T) {
		f := newFakeSender()
		d := New(Config{Workers: 2}, f, nil)

		ctx, cancel := context.WithCancel(t.Context())
		stopped := d.Run(ctx)

		for i := range 5 {
			require.NoError(t, d.Enqueue(job(int64(i))))
		}
		waitCalls(t, f, 5)

		cancel()
		<-stopped

		require.Len(t, f.Calls(), 5)
	})

	t.Run("queue full", func(t *testing.T) {
		d := New(Config{QueueSize: 1}, newFakeSender(), nil)

		require.NoError(t, d.Enqueue(job(1)))
		require.ErrorIs(t, d.Enqueue(job(2)), ErrQueueFull, "nobody consumes, second job does not fit")
	})

	t.Run("throttled job is retried after wait", func(t *testing.T) {
		retryAfter := 50 * time.Millisecond
		f := newFakeSender(&telegram.Error{Code: telegram.CodeRetryAfter, RetryAfter: retryAfter})
		d := New(Config{Workers: 1}, f, nil)

		ctx, cancel := context.WithCancel(t.Context())
		stopped := d.Run(ctx)

		require.NoError(t, d.Enqueue(job(1)))
		waitCalls(t, f, 2)

		cancel()
		<-stopped

		calls := f.Calls()
		require.Equal(t, calls[0].url, calls[1].url, "same image is sent again")
		require.GreaterOrEqual(t, calls[1].at.Sub(calls[0].at), retryAfter-5*time.Millisecond, "worker waits for the rate limit")
	})

	t.Run("throttled job dropped after max attempts", func(t *testing.T) {
		throttled := &telegram.Error{Code: telegram.CodeRetryAfter, RetryAfter: time.Millisecond}
		f := newFakeSender(throttled, throttled, throttled)
		d := New(Config{Workers: 1, MaxAttempts: 2}, f, nil)

		ctx, cancel := context.WithCancel(t.Context())
		stopped := d.Run(ctx)

		require.NoError(t, d.Enqueue(job(1)))
		waitCalls(t, f, 2)
		time.Sleep(20 * time.Millisecond)

		cancel()
		<-stopped
		require.Len(t, f.Calls(), 2, "job is not retried after max attempts")
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		f := newFakeSender(&telegram.Error{Code: telegram.CodeForbidden}, errors.New("boom"))
		d := New(Config{Workers: 1}, f, nil)

		ctx, cancel := context.WithCancel(t.Context())
		stopped := d.Run(ctx)

		require.NoError(t, d.Enqueue(job(1)))
		require.NoError(t, d.Enqueue(job(2)))
		require.NoError(t, d.Enqueue(job(3)))
		waitCalls(t, f, 3)
		time.Sleep(20 * time.Millisecond)

		cancel()
		<-stopped
		require.Len(t, f.Calls(), 3)
	})
}
