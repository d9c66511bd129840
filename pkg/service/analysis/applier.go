/*
 * @Description: 将推理结果合并进已入库的图片
 * @Author: 安知鱼
 * @Date: 2026-09-08 15:11:20
 * @LastEditTime: 2026-10-14 16:05:12
 * @LastEditors: 安知鱼
 */
package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/anzhiyu-c/anheyu-gallery/internal/pkg/strutil"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/repository"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/metadata"
)

// maxTagLength 是推理返回的单个标签的最大长度
const maxTagLength = 64

// Applier 以追加的方式把推理结果写回图片，从不覆盖已有内容
type Applier struct {
	photos repository.PhotoRepository
	tags   repository.TagRepository
}

// NewApplier 创建 Applier
func NewApplier(photos repository.PhotoRepository, tags repository.TagRepository) *Applier {
	return &Applier{photos: photos, tags: tags}
}

// Apply 追加摘要与描述并关联标签，长度分别限制在 255 与 2048 以内
func (a *Applier) Apply(ctx context.Context, photoID uint, result *model.AnalysisResult) error {
	if result.Empty() {
		return nil
	}

	photo, err := a.photos.FindByID(ctx, photoID)
	if err != nil {
		return err
	}

	summary := strutil.AppendBounded(photo.Summary, " ", strings.TrimSpace(result.Summary), metadata.MaxSummaryLength)
	description := strutil.AppendBounded(photo.Description, "\n\n", strings.TrimSpace(result.Description), metadata.MaxDescriptionLength)
	if summary != photo.Summary || description != photo.Description {
		if err := a.photos.UpdateText(ctx, photoID, summary, description); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(result.Tags))
	for _, t := range result.Tags {
		if t = strings.TrimSpace(t); t != "" {
			names = append(names, strutil.Truncate(t, maxTagLength))
		}
	}
	if len(names) == 0 {
		return nil
	}
	tags, err := a.tags.FindOrCreate(ctx, names)
	if err != nil {
		return fmt.Errorf("%w: 创建推理标签失败: %v", constant.ErrExternal, err)
	}
	return a.photos.AttachTags(ctx, photoID, tags)
}
