package delivery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/pixelforge/internal/logger"
	"github.com/nkiryanov/pixelforge/internal/models"
	"github.com/nkiryanov/pixelforge/internal/service/telegram"
)

const (
	defaultCountWorkers = 4   // Number of workers sending photos
	defaultQueueSize    = 100 // Jobs waiting for a worker
	defaultMaxAttempts  = 3   // Throttled job is put back until attempts are over
)

var ErrQueueFull = errors.New("delivery queue is full")

type sender interface {
	SendPhoto(ctx context.Context, chatID int64, photoURL string, caption string) error
}

// Job is one image to send to user's private chat with the bot
type Job struct {
	ChatID  int64
	Image   models.ImageRef
	Caption string

	attempt int
}

type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
}

type Dispatcher struct {
	countWorkers int
	maxAttempts  int

	// Bot API may return rate-limit errors
	// If the client is rate-limited, workers will wait until the time is up
	waitUntil atomic.Int64

	queue  chan Job
	client sender
	logger logger.Logger
}

func New(cfg Config, client sender, l logger.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultCountWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Dispatcher{
		countWorkers: cfg.Workers,
		maxAttempts:  cfg.MaxAttempts,
		queue:        make(chan Job, cfg.QueueSize),
		client:       client,
		logger:       l,
	}
}

// Enqueue job without blocking, ErrQueueFull if workers are behind
func (d *Dispatcher) Enqueue(job Job) error {
	select {
	case d.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run workers until ctx is done, returned channel is closed when all workers stopped
func (d *Dispatcher) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range d.countWorkers {
		wg.Add(1)
		go func() {
			d.worker(ctx)
			wg.Done()
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		d.logger.Debug("Dispatcher stopped")
	}()

	return idleStopped
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		// Wait until rate limit is passed or context is done
		waitUntil := time.UnixMilli(d.waitUntil.Load())
		if waitUntil.After(time.Now()) {
			d.logger.Debug("Worker is waiting for rate limit to reset", "wait_until", waitUntil)

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(waitUntil)):
				continue
			}
		}

		select {
		case <-ctx.Done():
			return

		case job := <-d.queue:
			d.send(ctx, job)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, job Job) {
	job.attempt++
	err := d.client.SendPhoto(ctx, job.ChatID, job.Image.URL, job.Caption)

	var tgErr *telegram.Error
	switch {
	case err == nil:
		d.logger.Debug("Image delivered", "chat_id", job.ChatID, "image_id", job.Image.ID)

	case errors.As(err, &tgErr) && tgErr.Code == telegram.CodeRetryAfter:
		d.logger.Info("Rate limit exceeded, waiting", "retry_after", tgErr.RetryAfter)
		d.waitUntil.Store(time.Now().Add(tgErr.RetryAfter).UnixMilli())

		if job.attempt >= d.maxAttempts {
			d.logger.Error("Image dropped, attempts are over", "chat_id", job.ChatID, "image_id", job.Image.ID)
			return
		}
		if err := d.Enqueue(job); err != nil {
			d.logger.Error("Image dropped", "error", err, "chat_id", job.ChatID, "image_id", job.Image.ID)
		}

	default:
		d.logger.Error("Failed to deliver image", "error", err, "chat_id", job.ChatID, "image_id", job.Image.ID)
	}
}
