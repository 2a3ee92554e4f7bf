package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

type fakeJS struct {
	published []*nats.Msg
	info      *nats.StreamInfo
	infoErr   error
	added     *nats.StreamConfig
	updated   *nats.StreamConfig
	pubErr    error
}

func (f *fakeJS) PublishMsg(m *nats.Msg, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if f.pubErr != nil {
		return nil, f.pubErr
	}
	f.published = append(f.published, m)
	return &nats.PubAck{Stream: StreamName}, nil
}

func (f *fakeJS) StreamInfo(string, ...nats.JSOpt) (*nats.StreamInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeJS) AddStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	f.added = cfg
	return &nats.StreamInfo{Config: *cfg}, nil
}

func (f *fakeJS) UpdateStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	f.updated = cfg
	return &nats.StreamInfo{Config: *cfg}, nil
}

func TestPublisher_NilIsDisabled(t *testing.T) {
	var p *Publisher
	require.False(t, p.Enabled())
	require.ErrorIs(t, p.PublishJSON(context.Background(), SubjectBookDeleted, "", BookDeleted{}), ErrPublishDisabled)

	p = NewPublisher(nil, nil)
	require.False(t, p.Enabled())
	require.ErrorIs(t, p.EnsureStream(context.Background()), ErrPublishDisabled)
}

func TestPublisher_PublishJSON_SetsDedupHeader(t *testing.T) {
	js := &fakeJS{}
	p := NewPublisher(js, nil)

	ev := BookDeleted{EventID: "ev-1", UserID: "u1", BookID: "b1"}
	require.NoError(t, p.PublishJSON(context.Background(), SubjectBookDeleted, ev.EventID, ev))
	require.Len(t, js.published, 1)

	msg := js.published[0]
	require.Equal(t, SubjectBookDeleted, msg.Subject)
	require.Equal(t, "ev-1", msg.Header.Get(nats.MsgIdHdr))

	var got BookDeleted
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	require.Equal(t, "b1", got.BookID)
}

func TestPublisher_PublishJSON_GeneratesID(t *testing.T) {
	js := &fakeJS{}
	p := NewPublisher(js, nil)
	require.NoError(t, p.PublishJSON(context.Background(), SubjectProgressUpsert, "", ProgressUpsert{}))
	require.NotEmpty(t, js.published[0].Header.Get(nats.MsgIdHdr))
}

func TestPublisher_PublishError(t *testing.T) {
	js := &fakeJS{pubErr: errors.New("no responders")}
	p := NewPublisher(js, nil)
	require.Error(t, p.PublishJSON(context.Background(), SubjectProgressUpsert, "x", ProgressUpsert{}))
}

func TestEnsureStream_CreatesWhenMissing(t *testing.T) {
	js := &fakeJS{infoErr: nats.ErrStreamNotFound}
	require.NoError(t, NewPublisher(js, nil).EnsureStream(context.Background()))
	require.NotNil(t, js.added)
	require.Equal(t, StreamName, js.added.Name)
	require.ElementsMatch(t, []string{"reader.>", "library.>"}, js.added.Subjects)
}

func TestEnsureStream_UpdatesSubjects(t *testing.T) {
	js := &fakeJS{info: &nats.StreamInfo{Config: nats.StreamConfig{Name: StreamName, Subjects: []string{"reader.>"}}}}
	require.NoError(t, NewPublisher(js, nil).EnsureStream(context.Background()))
	require.NotNil(t, js.updated)
	require.Nil(t, js.added)
}

func TestEnsureStream_NoopWhenCurrent(t *testing.T) {
	js := &fakeJS{info: &nats.StreamInfo{Config: nats.StreamConfig{Name: StreamName, Subjects: []string{"library.>", "reader.>"}}}}
	require.NoError(t, NewPublisher(js, nil).EnsureStream(context.Background()))
	require.Nil(t, js.updated)
	require.Nil(t, js.added)
}

func TestEnsureStream_PropagatesOtherErrors(t *testing.T) {
	js := &fakeJS{infoErr: errors.New("timeout")}
	require.Error(t, NewPublisher(js, nil).EnsureStream(context.Background()))
}

func TestSettle(t *testing.T) {
	require.Equal(t, settleAck, settle(nil))
	require.Equal(t, settleAck, settle(fmt.Errorf("decode: %w", ErrPoison)))
	require.Equal(t, settleNak, settle(errors.New("db down")))
}
