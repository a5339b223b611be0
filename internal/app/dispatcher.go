package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"forecast_bot/internal/domain/telegram"
	"forecast_bot/internal/infra/metrics"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Message is an ordered list of HTML parts delivered to every recipient.
type Message struct {
	Parts []string
}

type BroadcastResult struct {
	Sent             int
	Failed           int
	FailedRecipients []int64 // in recipient order
}

type DispatcherConfig struct {
	RatePerSec      int
	Workers         int
	MaxFloodRetries int
	MessageLimit    int
}

// Dispatcher fans a message out to recipients under one shared rate limit.
// A flood response from the platform pauses every worker.
type Dispatcher struct {
	sender  MessageSender
	cfg     DispatcherConfig
	limiter *rate.Limiter
	logger  *logrus.Entry

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	pausedUntil time.Time
}

func NewDispatcher(sender MessageSender, cfg DispatcherConfig, logger *logrus.Entry) *Dispatcher {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = 4096
	}
	return &Dispatcher{
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		logger:  logger.WithField("component", "dispatcher"),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// WithClock replaces the time source used for flood pauses.
func (d *Dispatcher) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Dispatcher {
	d.now = now
	d.sleep = sleep
	return d
}

func (d *Dispatcher) Broadcast(ctx context.Context, msg Message, recipients []int64) BroadcastResult {
	chunks := make([]string, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		chunks = append(chunks, ChunkText(part, d.cfg.MessageLimit)...)
	}

	failed := make([]bool, len(recipients))
	jobs := make(chan int)

	workers := d.cfg.Workers
	if workers > len(recipients) {
		workers = len(recipients)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := d.deliver(ctx, recipients[idx], chunks); err != nil {
					failed[idx] = true
					d.logger.WithFields(logrus.Fields{
						"chat_id": recipients[idx],
					}).WithError(err).Warn("delivery to recipient failed")
				}
			}
		}()
	}

feed:
	for i := range recipients {
		select {
		case jobs <- i:
		case <-ctx.Done():
			for j := i; j < len(recipients); j++ {
				failed[j] = true
			}
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	result := BroadcastResult{FailedRecipients: make([]int64, 0)}
	for i, f := range failed {
		if f {
			result.Failed++
			result.FailedRecipients = append(result.FailedRecipients, recipients[i])
		} else {
			result.Sent++
		}
	}
	metrics.RecipientFailuresTotal.Add(float64(result.Failed))

	d.logger.WithFields(logrus.Fields{
		"recipients": len(recipients),
		"chunks":     len(chunks),
		"sent":       result.Sent,
		"failed":     result.Failed,
	}).Info("broadcast finished")
	return result
}

// deliver sends every chunk in order; the first failing chunk aborts the recipient.
func (d *Dispatcher) deliver(ctx context.Context, chatID int64, chunks []string) error {
	for i, chunk := range chunks {
		if err := d.sendChunk(ctx, chatID, chunk); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

func (d *Dispatcher) sendChunk(ctx context.Context, chatID int64, text string) error {
	floods := 0
	for {
		if err := d.waitPause(ctx); err != nil {
			return err
		}
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}

		err := d.sender.SendHTML(ctx, chatID, text)
		if err == nil {
			metrics.MessagesSentTotal.Inc()
			return nil
		}

		rl, ok := telegram.AsRateLimited(err)
		if !ok {
			return err
		}
		metrics.FloodWaitsTotal.Inc()
		floods++
		if floods > d.cfg.MaxFloodRetries {
			return fmt.Errorf("flood retries exhausted: %w", err)
		}
		d.logger.WithFields(logrus.Fields{
			"chat_id":     chatID,
			"retry_after": rl.RetryAfter,
		}).Warn("rate limited by telegram, pausing dispatch")
		d.pause(rl.RetryAfter)
	}
}

func (d *Dispatcher) pause(dur time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if until := d.now().Add(dur); until.After(d.pausedUntil) {
		d.pausedUntil = until
	}
}

func (d *Dispatcher) waitPause(ctx context.Context) error {
	d.mu.Lock()
	wait := d.pausedUntil.Sub(d.now())
	d.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	return d.sleep(ctx, wait)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
