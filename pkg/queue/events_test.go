package queue_test

import (
	"context"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	"github.com/bizzlechizzle/aupat/pkg/queue"
)

type recorder struct {
	mu     sync.Mutex
	topics []string
	msgs   []*message.Message
}

func (r *recorder) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range msgs {
		r.topics = append(r.topics, topic)
		r.msgs = append(r.msgs, m)
	}

	return nil
}

func TestEventsRespectSwitches(t *testing.T) {
	rec := &recorder{}
	cfg := configs.Default().Events

	ev := queue.NewEvents(rec, cfg)
	ctx := context.Background()

	ev.EntityImported(ctx, queue.EntityImportedPayload{Entity: queue.EntityRef{Kind: "img", ID: "x"}})
	ev.EntityDuplicate(ctx, queue.EntityDuplicatePayload{}) // 默认关闭
	ev.SyncConflict(ctx, queue.SyncConflictPayload{ID: "y"})

	assert.Equal(t, []string{queue.TopicEntityImported, queue.TopicSyncConflict}, rec.topics)

	env, err := queue.ParseWatermillMessage[queue.EntityImportedPayload](rec.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, "x", env.Payload.Entity.ID)
	assert.Equal(t, queue.TopicEntityImported, env.Header.Topic)
	assert.Equal(t, configs.AppName, env.Header.Producer)

	cfg.Enabled = false
	off := queue.NewEvents(rec, cfg)
	off.SyncPushed(ctx, queue.SyncPushedPayload{})
	assert.Len(t, rec.topics, 2)
}

func TestNilEventsIsSafe(t *testing.T) {
	var ev *queue.Events

	ev.EntityImported(context.Background(), queue.EntityImportedPayload{})
	ev.SyncPushed(context.Background(), queue.SyncPushedPayload{})
}

func TestEncodeDecode(t *testing.T) {
	msg := queue.Message[queue.SyncPushedPayload]{
		Header:  queue.NewEventHeader(queue.TopicSyncPushed),
		Payload: queue.SyncPushedPayload{DeviceID: "tablet", Accepted: 2},
	}

	b, err := queue.Encode(msg)
	require.NoError(t, err)

	got, err := queue.Decode[queue.SyncPushedPayload](b)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Payload.Accepted)
	assert.Equal(t, queue.PayloadVersionV1, got.Header.Version)
}

func TestTopicEnabled(t *testing.T) {
	cfg := configs.Default().Events

	assert.True(t, queue.TopicEnabled(cfg, queue.TopicEntityImported))
	assert.False(t, queue.TopicEnabled(cfg, queue.TopicEntityDuplicate))
	assert.False(t, queue.TopicEnabled(cfg, "aupat.entity.unknown"))

	cfg.Enabled = false
	for _, topic := range queue.AllTopics() {
		assert.False(t, queue.TopicEnabled(cfg, topic), topic)
	}
}
