// 消息主题常量，供发布/订阅使用.
package queue

import "github.com/bizzlechizzle/aupat/pkg/configs"

// 主题命名规范：aupat.<域>.<动作>，尽量稳定且向后兼容.
// 域：entity（导入流水线）、sync（现场同步）

const (
	// 导入流水线领域.
	TopicEntityImported     = "aupat.entity.imported"      // 文件已落盘、复核通过并写入数据库
	TopicEntityDuplicate    = "aupat.entity.duplicate"     // 内容哈希已存在，返回已有实体
	TopicEntityVerifyFailed = "aupat.entity.verify_failed" // 落盘后复核哈希不一致，坏副本已删除

	// 同步领域.
	TopicSyncPushed   = "aupat.sync.pushed"   // 一次推送处理完成
	TopicSyncConflict = "aupat.sync.conflict" // 推送的修改不比服务端新
)

// AllTopics 返回全部主题，便于订阅方遍历.
func AllTopics() []string {
	return []string{
		TopicEntityImported,
		TopicEntityDuplicate,
		TopicEntityVerifyFailed,
		TopicSyncPushed,
		TopicSyncConflict,
	}
}

// TopicEnabled 按总开关与分主题开关判断是否发布. 未知主题视为关闭.
func TopicEnabled(cfg configs.EventsConfig, topic string) bool {
	if !cfg.Enabled {
		return false
	}

	switch topic {
	case TopicEntityImported:
		return cfg.Entity.Imported
	case TopicEntityDuplicate:
		return cfg.Entity.Duplicate
	case TopicEntityVerifyFailed:
		return cfg.Entity.VerifyFailed
	case TopicSyncPushed:
		return cfg.Sync.Pushed
	case TopicSyncConflict:
		return cfg.Sync.Conflict
	default:
		return false
	}
}
