/*
 * @Description: 定义了所有存储驱动需要遵守的接口和公共结构
 * @Author: 安知鱼
 * @Date: 2025-06-28 00:21:55
 * @LastEditTime: 2026-10-14 13:48:33
 * @LastEditors: 安知鱼
 */
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/config"
)

// ErrObjectExists 表示写入的目标对象已存在。存储驱动从不覆盖已有对象。
var ErrObjectExists = errors.New("存储对象已存在")

// IBlobStore 定义了所有存储提供者必须实现的接口。
// key 为 "<尺寸>/<日期分桶>/<文件名>" 形式的相对路径，始终使用正斜杠。
//
// Open 返回的错误约定：
//   - 对象不存在时包装 constant.ErrNotFound
//   - 权限不足时包装 constant.ErrLocked
//   - 其余错误原样包装
type IBlobStore interface {
	// Exists 检查给定的对象键是否存在。
	Exists(ctx context.Context, key string) (bool, error)
	// Create 以独占方式写入一个新对象，对象已存在时返回 ErrObjectExists。
	Create(ctx context.Context, key string, data []byte) error
	// Open 返回一个只读的文件流。
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete 删除一个对象，对象不存在时不报错。
	Delete(ctx context.Context, key string) error
}

// NewBlobStore 根据 Storage.Type 配置创建存储驱动
func NewBlobStore(ctx context.Context, cfg *config.Config) (IBlobStore, error) {
	switch t := cfg.GetString(config.KeyStorageType); t {
	case "", "local":
		return NewLocalStore(cfg.GetString(config.KeyStorageRoot))
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket:    cfg.GetString(config.KeyS3Bucket),
			Region:    cfg.GetString(config.KeyS3Region),
			Endpoint:  cfg.GetString(config.KeyS3Endpoint),
			AccessKey: cfg.GetString(config.KeyS3AccessKey),
			SecretKey: cfg.GetString(config.KeyS3SecretKey),
			Prefix:    cfg.GetString(config.KeyS3Prefix),
		})
	case "aliyun_oss":
		return NewOSSStore(OSSOptions{
			Bucket:    cfg.GetString(config.KeyOSSBucket),
			Endpoint:  cfg.GetString(config.KeyOSSEndpoint),
			AccessKey: cfg.GetString(config.KeyOSSAccessKey),
			SecretKey: cfg.GetString(config.KeyOSSSecretKey),
			Prefix:    cfg.GetString(config.KeyOSSPrefix),
		})
	case "qiniu_kodo":
		return NewKodoStore(KodoOptions{
			Bucket:    cfg.GetString(config.KeyKodoBucket),
			Domain:    cfg.GetString(config.KeyKodoDomain),
			Region:    cfg.GetString(config.KeyKodoRegion),
			AccessKey: cfg.GetString(config.KeyKodoAccessKey),
			SecretKey: cfg.GetString(config.KeyKodoSecretKey),
			Prefix:    cfg.GetString(config.KeyKodoPrefix),
		})
	default:
		return nil, fmt.Errorf("不支持的存储类型: %s (支持: local, s3, aliyun_oss, qiniu_kodo)", t)
	}
}
