/*
 * @Description: 图片仓储契约
 * @Author: 安知鱼
 * @Date: 2026-09-02 15:40:18
 * @LastEditTime: 2026-10-14 11:20:05
 * @LastEditors: 安知鱼
 */
package repository

import (
	"context"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
)

// PhotoRepository 定义了图片数据操作的契约。
// 未找到记录时实现方须返回包装了 constant.ErrNotFound 的错误。
type PhotoRepository interface {
	// Create 在一个事务中写入图片、全部尺寸的文件记录以及标签关联
	Create(ctx context.Context, draft *model.PhotoDraft, tags []*model.Tag) (*model.Photo, error)
	// FindByID 根据主键查找图片，包含文件记录与标签
	FindByID(ctx context.Context, id uint) (*model.Photo, error)
	// FindBySlug 根据 slug 查找图片，包含文件记录与标签
	FindBySlug(ctx context.Context, slug string) (*model.Photo, error)
	// FindFilepath 查找图片某个尺寸的文件记录
	FindFilepath(ctx context.Context, photoID uint, dim model.Dimension) (*model.FilepathRecord, error)
	// SlugsWithPrefix 返回全表中以 prefix 开头的全部 slug，slug 在全表范围内唯一
	SlugsWithPrefix(ctx context.Context, prefix string) ([]string, error)
	// UpdateText 覆盖写入摘要与描述
	UpdateText(ctx context.Context, photoID uint, summary, description string) error
	// AttachTags 为图片追加标签，已关联的标签会被忽略
	AttachTags(ctx context.Context, photoID uint, tags []*model.Tag) error
}
