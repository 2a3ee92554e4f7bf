// Package events publishes and consumes domain events over NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	StreamName = "PAGEMARK_EVENTS"

	SubjectProgressUpsert = "reader.progress.upsert"
	SubjectBookDeleted    = "library.book.deleted"
)

var streamSubjects = []string{"reader.>", "library.>"}

var ErrPublishDisabled = errors.New("async publish is disabled")

// ProgressUpsert is published by the progress API when writes are deferred
// to the consumer.
type ProgressUpsert struct {
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	BookID      string    `json:"book_id"`
	CurrentPage int       `json:"current_page"`
	ZoomLevel   float64   `json:"zoom_level"`
	CreatedAt   time.Time `json:"created_at"`
}

type BookDeleted struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	BookID    string    `json:"book_id"`
	CreatedAt time.Time `json:"created_at"`
}

// JetStream is the subset of nats.JetStreamContext used here.
type JetStream interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// Publisher is nil-safe: a nil receiver or nil JetStream reports disabled.
type Publisher struct {
	js  JetStream
	log *zap.Logger
}

func NewPublisher(js JetStream, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, log: log}
}

func (p *Publisher) Enabled() bool {
	return p != nil && p.js != nil
}

// EnsureStream creates the event stream or widens its subjects.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	if !p.Enabled() {
		return ErrPublishDisabled
	}
	info, err := p.js.StreamInfo(StreamName, nats.Context(ctx))
	if err == nil {
		if hasSubjects(info.Config.Subjects, streamSubjects) {
			return nil
		}
		cfg := info.Config
		cfg.Subjects = streamSubjects
		_, err := p.js.UpdateStream(&cfg, nats.Context(ctx))
		return err
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: streamSubjects,
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	}, nats.Context(ctx))
	return err
}

// PublishJSON marshals v and publishes it with eventID as the dedup id.
func (p *Publisher) PublishJSON(ctx context.Context, subject, eventID string, v any) error {
	if !p.Enabled() {
		return ErrPublishDisabled
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(subject)
	msg.Data = body
	msg.Header.Set(nats.MsgIdHdr, eventID)
	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
		return err
	}
	return nil
}

func hasSubjects(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, s := range have {
		set[s] = struct{}{}
	}
	for _, s := range want {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}
