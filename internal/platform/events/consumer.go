package events

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ErrPoison marks a message that can never succeed; it is acked and dropped.
var ErrPoison = errors.New("poison message")

type Handler func(ctx context.Context, data []byte) error

type ConsumerOptions struct {
	Subject   string
	Durable   string
	BatchSize int
	MaxWait   time.Duration
}

type settlement int

const (
	settleAck settlement = iota
	settleNak
)

func settle(err error) settlement {
	if err == nil || errors.Is(err, ErrPoison) {
		return settleAck
	}
	return settleNak
}

// Consume pulls batches from a durable consumer until ctx is done.
func Consume(ctx context.Context, js nats.JetStreamContext, opts ConsumerOptions, h Handler, log *zap.Logger) error {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 2 * time.Second
	}
	sub, err := js.PullSubscribe(opts.Subject, opts.Durable)
	if err != nil {
		return err
	}
	log = log.With(zap.String("subject", opts.Subject), zap.String("durable", opts.Durable))

	for {
		select {
		case <-ctx.Done():
			_ = sub.Unsubscribe()
			return nil
		default:
		}

		msgs, err := sub.Fetch(opts.BatchSize, nats.MaxWait(opts.MaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			log.Warn("consumer: fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, m := range msgs {
			herr := h(ctx, m.Data)
			switch settle(herr) {
			case settleAck:
				if herr != nil {
					log.Warn("consumer: dropping message", zap.Error(herr))
				}
				if err := m.Ack(); err != nil {
					log.Warn("consumer: ack failed", zap.Error(err))
				}
			case settleNak:
				log.Warn("consumer: handler failed", zap.Error(herr))
				if err := m.Nak(); err != nil {
					log.Warn("consumer: nak failed", zap.Error(err))
				}
			}
		}
	}
}
