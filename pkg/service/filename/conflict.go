/*
 * @Description: 同一日期分桶内的文件名冲突处理
 * @Author: 安知鱼
 * @Date: 2026-09-03 11:15:27
 * @LastEditTime: 2026-10-14 12:30:48
 * @LastEditors: 安知鱼
 */
package filename

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
)

// MaxConflictAttempts 是冲突处理最多尝试的候选名数量
const MaxConflictAttempts = 4096

// ExistenceChecker 查询存储中某个对象键是否已存在
type ExistenceChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// Reservation 是一次冲突处理的结果。
// 在 Release 之前，同一进程内的其他请求不会拿到相同的候选名。
type Reservation struct {
	Name      string
	Conflicts int

	release func()
}

// Release 释放本进程内对该文件名的占用，可重复调用
func (r *Reservation) Release() {
	if r != nil && r.release != nil {
		r.release()
		r.release = nil
	}
}

// Resolver 为文件名追加 _copy / _copy_N 后缀，直到所有目标目录中都不存在同名文件
type Resolver struct {
	store       ExistenceChecker
	maxAttempts int

	mu       sync.Mutex
	reserved map[string]struct{}
}

// NewResolver 创建冲突处理器
func NewResolver(store ExistenceChecker) *Resolver {
	return &Resolver{
		store:       store,
		maxAttempts: MaxConflictAttempts,
		reserved:    make(map[string]struct{}),
	}
}

// Resolve 在 dirs 指定的全部目录中为 name 找到一个空闲的文件名。
// 返回的 Conflicts 为追加后缀的次数（0 表示未发生冲突）。
// 超过尝试上限时返回包装了 constant.ErrIO 的错误。
func (r *Resolver) Resolve(ctx context.Context, dirs []string, name string) (*Reservation, error) {
	stem, ext := SplitExt(name)

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate := CandidateName(stem, ext, attempt)
		keys := make([]string, 0, len(dirs))
		for _, dir := range dirs {
			keys = append(keys, path.Join(dir, candidate))
		}

		free, err := r.isFree(ctx, keys)
		if err != nil {
			return nil, err
		}
		if !free {
			continue
		}

		if r.reserve(keys) {
			return &Reservation{
				Name:      candidate,
				Conflicts: attempt,
				release:   func() { r.unreserve(keys) },
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: 文件名 %q 冲突次数超过上限 %d", constant.ErrIO, name, r.maxAttempts)
}

func (r *Resolver) isFree(ctx context.Context, keys []string) (bool, error) {
	for _, key := range keys {
		exists, err := r.store.Exists(ctx, key)
		if err != nil {
			return false, fmt.Errorf("%w: 检查文件 %q 是否存在失败: %v", constant.ErrIO, key, err)
		}
		if exists {
			return false, nil
		}
	}
	return true, nil
}

func (r *Resolver) reserve(keys []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		if _, taken := r.reserved[k]; taken {
			return false
		}
	}
	for _, k := range keys {
		r.reserved[k] = struct{}{}
	}
	return true
}

func (r *Resolver) unreserve(keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.reserved, k)
	}
}

// CandidateName 返回第 attempt 次尝试的候选文件名：
// 0 为原名，1 为 stem_copy，N>=2 为 stem_copy_N。主体会被截断以满足 MaxLength。
func CandidateName(stem, ext string, attempt int) string {
	suffix := ""
	switch {
	case attempt == 1:
		suffix = "_copy"
	case attempt >= 2:
		suffix = "_copy_" + strconv.Itoa(attempt)
	}
	if suffix == "" {
		return Join(stem, ext, MaxLength)
	}
	return Join(stem, suffix+ext, MaxLength)
}
