// internal/infra/storage/local.go
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
)

// LocalStore 实现了 IBlobStore 接口，用于处理与本机磁盘文件系统的所有交互。
type LocalStore struct {
	root string
}

// NewLocalStore 是 LocalStore 的构造函数，root 不存在时会被创建。
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("本地存储根目录不能为空")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("解析本地存储根目录失败: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("创建本地存储根目录 '%s' 失败: %w", abs, err)
	}
	log.Printf("[LocalStore] 本地存储根目录: %s", abs)
	return &LocalStore{root: abs}, nil
}

// Root 返回存储根目录的绝对路径
func (s *LocalStore) Root() string {
	return s.root
}

// physicalPath 将对象键转换为根目录下的物理路径，拒绝任何逃逸出根目录的键
func (s *LocalStore) physicalPath(key string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(key, `\`, "/"))
	if cleaned == "/" {
		return "", fmt.Errorf("%w: 对象键为空", constant.ErrValidation)
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// Exists 检查给定的对象键是否存在物理文件。
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := s.physicalPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("检查文件 '%s' 失败: %w", p, err)
	}
	return true, nil
}

// Create 以 O_EXCL 方式创建文件，目标已存在时返回 ErrObjectExists，从不覆盖。
func (s *LocalStore) Create(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.physicalPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("%w: 创建目录 '%s' 失败: %v", constant.ErrIO, filepath.Dir(p), err)
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrObjectExists, key)
		}
		return fmt.Errorf("%w: 创建文件 '%s' 失败: %v", constant.ErrIO, p, err)
	}

	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		os.Remove(p)
		return fmt.Errorf("%w: 写入文件 '%s' 失败: %v", constant.ErrIO, p, err)
	}
	// 确保数据写入磁盘
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(p)
		return fmt.Errorf("%w: 同步文件 '%s' 到磁盘失败: %v", constant.ErrIO, p, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: 关闭文件 '%s' 失败: %v", constant.ErrIO, p, err)
	}
	return nil
}

// Open 以只读方式打开文件。
func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.physicalPath(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(p)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, fmt.Errorf("%w: 物理文件不存在: %s", constant.ErrNotFound, key)
		case os.IsPermission(err):
			return nil, fmt.Errorf("%w: 无权限打开物理文件: %s", constant.ErrLocked, key)
		default:
			return nil, fmt.Errorf("无法打开物理文件 '%s': %w", p, err)
		}
	}
	return file, nil
}

// Delete 删除文件，文件不存在时视为成功。
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.physicalPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: 删除文件 '%s' 失败: %v", constant.ErrIO, p, err)
	}
	return nil
}
