package importer

import (
	"context"
	"time"

	"github.com/bizzlechizzle/aupat/pkg/internal/model"
	nlog "github.com/bizzlechizzle/aupat/pkg/log"
)

// AssetMeta 上传到相册服务时附带的元数据.
type AssetMeta struct {
	EntityID    string
	LocationID  string
	Kind        model.Kind
	Hash        string
	ArchivePath string
	ImportedAt  time.Time
}

// AssetUploader 相册管理服务的适配器. 设置 Deps.Uploader 后，复核通过的新图片与视频
// 会交给它，失败只记录日志，不影响导入结果.
type AssetUploader interface {
	Health(ctx context.Context) error
	Upload(ctx context.Context, path string, meta AssetMeta) (assetID string, err error)
}

// WebArchiver 网页存档服务的适配器. 流水线自身不调用它，
// 由独立的 URL 存档子系统实现并使用，接口放在这里与 AssetUploader 保持同一套约定.
type WebArchiver interface {
	Health(ctx context.Context) error
	Submit(ctx context.Context, url string) (jobID string, err error)
}

func (p *Pipeline) uploadAsset(ctx context.Context, dest, locationID string, res *Result) {
	if p.uploader == nil || (res.Kind != model.KindImage && res.Kind != model.KindVideo) {
		return
	}

	assetID, err := p.uploader.Upload(ctx, dest, AssetMeta{
		EntityID:    res.EntityID,
		LocationID:  locationID,
		Kind:        res.Kind,
		Hash:        res.Hash,
		ArchivePath: res.ArchivePath,
		ImportedAt:  time.Now().UTC(),
	})
	if err != nil {
		nlog.Logger().Warn().Err(err).Str("id", res.EntityID).Msg("asset upload failed")
		return
	}

	nlog.Logger().Debug().Str("id", res.EntityID).Str("asset", assetID).Msg("asset uploaded")
}
