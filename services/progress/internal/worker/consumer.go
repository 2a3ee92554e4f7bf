// Package worker applies progress events delivered over JetStream.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/example/pagemark/internal/platform/events"
	"github.com/example/pagemark/services/progress/internal/store"
)

var tracer = otel.Tracer("pagemark/progress/worker")

type Consumer struct {
	Repo store.ProgressRepository
	Log  *zap.Logger
}

// HandleProgressUpsert applies a deferred PUT. Undecodable or invalid
// payloads are poison; store failures are retried.
func (c *Consumer) HandleProgressUpsert(ctx context.Context, data []byte) error {
	ctx, span := tracer.Start(ctx, "progress.upsert")
	defer span.End()

	var ev events.ProgressUpsert
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("%w: decode progress event: %v", events.ErrPoison, err)
	}
	userID, err := uuid.Parse(ev.UserID)
	if err != nil {
		return fmt.Errorf("%w: user_id: %v", events.ErrPoison, err)
	}
	bookID, err := uuid.Parse(ev.BookID)
	if err != nil {
		return fmt.Errorf("%w: book_id: %v", events.ErrPoison, err)
	}
	span.SetAttributes(attribute.String("book_id", ev.BookID), attribute.String("event_id", ev.EventID))

	rec := store.ProgressRecord{UserID: userID, BookID: bookID, CurrentPage: ev.CurrentPage, ZoomLevel: ev.ZoomLevel}
	if err := store.Validate(rec); err != nil {
		return fmt.Errorf("%w: %v", events.ErrPoison, err)
	}
	if _, err := c.Repo.Upsert(ctx, rec); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// HandleBookDeleted removes every user's progress for the deleted book.
func (c *Consumer) HandleBookDeleted(ctx context.Context, data []byte) error {
	ctx, span := tracer.Start(ctx, "progress.delete_book")
	defer span.End()

	var ev events.BookDeleted
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("%w: decode book event: %v", events.ErrPoison, err)
	}
	bookID, err := uuid.Parse(ev.BookID)
	if err != nil {
		return fmt.Errorf("%w: book_id: %v", events.ErrPoison, err)
	}
	n, err := c.Repo.DeleteBook(ctx, bookID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	c.Log.Info("progress removed for deleted book", zap.String("book_id", ev.BookID), zap.Int64("rows", n))
	return nil
}

// Run starts both pull consumers and blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context, js nats.JetStreamContext) error {
	subs := []struct {
		opts events.ConsumerOptions
		h    events.Handler
	}{
		{events.ConsumerOptions{Subject: events.SubjectProgressUpsert, Durable: "progress_upsert"}, c.HandleProgressUpsert},
		{events.ConsumerOptions{Subject: events.SubjectBookDeleted, Durable: "progress_book_deleted"}, c.HandleBookDeleted},
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := events.Consume(ctx, js, s.opts, s.h, c.Log); err != nil {
				c.Log.Error("consumer stopped", zap.String("subject", s.opts.Subject), zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
