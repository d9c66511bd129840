/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-06-20 13:08:31
 * @LastEditTime: 2026-10-14 11:20:40
 * @LastEditors: 安知鱼
 */
package repository

import (
	"context"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
)

// TagRepository 定义了标签数据操作的契约
type TagRepository interface {
	// 根据一组标签名，查找已存在的标签，或创建新标签。同名标签只会创建一次。
	FindOrCreate(ctx context.Context, names []string) ([]*model.Tag, error)
}
