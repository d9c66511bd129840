/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-07-12 18:22:35
 * @LastEditTime: 2026-10-14 14:52:30
 * @LastEditors: 安知鱼
 */
package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/repository"
)

type sqlTagRepository struct {
	store *Store
	now   func() time.Time
}

// NewTagRepository 是 sqlTagRepository 的构造函数
func NewTagRepository(store *Store) repository.TagRepository {
	return &sqlTagRepository{store: store, now: time.Now}
}

// FindOrCreate 原子性地查找或创建标签。
// 先以冲突忽略的方式插入全部名字，再一次性查询回来，返回顺序与入参一致。
func (r *sqlTagRepository) FindOrCreate(ctx context.Context, names []string) ([]*model.Tag, error) {
	names = uniqueNames(names)
	if len(names) == 0 {
		return []*model.Tag{}, nil
	}

	var found []*model.Tag
	err := r.store.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		now := r.now().UTC()
		insert := r.store.q(r.store.insertIgnore("tags", "name", "created_at", "updated_at"))
		for _, name := range names {
			if _, err := tx.ExecContext(ctx, insert, name, now, now); err != nil {
				return fmt.Errorf("创建标签 '%s' 失败: %w", name, err)
			}
		}

		in, args := inClause(names)
		rows, err := tx.QueryContext(ctx, r.store.q("SELECT id, created_at, updated_at, name FROM tags WHERE name IN "+in), args...)
		if err != nil {
			return fmt.Errorf("查询最终标签列表失败: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			t := &model.Tag{}
			if err := rows.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.Name); err != nil {
				return err
			}
			found = append(found, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constant.ErrExternal, err)
	}

	byName := make(map[string]*model.Tag, len(found))
	for _, t := range found {
		byName[t.Name] = t
	}
	result := make([]*model.Tag, 0, len(names))
	for _, name := range names {
		if t, ok := byName[name]; ok {
			result = append(result, t)
		}
	}
	return result, nil
}

func uniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
