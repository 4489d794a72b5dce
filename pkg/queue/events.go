package queue

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	ctxPkg "github.com/bizzlechizzle/aupat/pkg/context"
	nlog "github.com/bizzlechizzle/aupat/pkg/log"
)

// Publisher 发布消息的最小接口，storage/mq.Client 满足.
type Publisher interface {
	Publish(ctx context.Context, topic string, msgs ...*message.Message) error
}

// Events 按配置开关发布领域事件. 发布失败只记录日志，不影响主流程.
// nil *Events 可安全调用.
type Events struct {
	pub Publisher
	cfg configs.EventsConfig
}

// NewEvents 创建事件发布器.
func NewEvents(pub Publisher, cfg configs.EventsConfig) *Events {
	return &Events{pub: pub, cfg: cfg}
}

func publish[T any](ctx context.Context, e *Events, topic string, payload T) {
	if e == nil || e.pub == nil || !TopicEnabled(e.cfg, topic) {
		return
	}

	msg, err := NewWatermillMessage(topic, payload,
		WithTraceID(ctxPkg.TraceID(ctx)),
		WithProducer(configs.AppName),
	)
	if err != nil {
		nlog.Logger().Warn().Err(err).Str("topic", topic).Msg("encode event failed")
		return
	}

	if err := e.pub.Publish(ctx, topic, msg); err != nil {
		nlog.Logger().Warn().Err(err).Str("topic", topic).Msg("publish event failed")
	}
}

// EntityImported 发布 aupat.entity.imported.
func (e *Events) EntityImported(ctx context.Context, p EntityImportedPayload) {
	if e == nil {
		return
	}

	publish(ctx, e, TopicEntityImported, p)
}

// EntityDuplicate 发布 aupat.entity.duplicate.
func (e *Events) EntityDuplicate(ctx context.Context, p EntityDuplicatePayload) {
	if e == nil {
		return
	}

	publish(ctx, e, TopicEntityDuplicate, p)
}

// EntityVerifyFailed 发布 aupat.entity.verify_failed.
func (e *Events) EntityVerifyFailed(ctx context.Context, p EntityVerifyFailedPayload) {
	if e == nil {
		return
	}

	publish(ctx, e, TopicEntityVerifyFailed, p)
}

// SyncPushed 发布 aupat.sync.pushed.
func (e *Events) SyncPushed(ctx context.Context, p SyncPushedPayload) {
	if e == nil {
		return
	}

	publish(ctx, e, TopicSyncPushed, p)
}

// SyncConflict 发布 aupat.sync.conflict.
func (e *Events) SyncConflict(ctx context.Context, p SyncConflictPayload) {
	if e == nil {
		return
	}

	publish(ctx, e, TopicSyncConflict, p)
}
