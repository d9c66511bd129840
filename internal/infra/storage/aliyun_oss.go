/*
 * @Description: 阿里云OSS存储驱动实现
 * @Author: 安知鱼
 * @Date: 2025-09-28 18:00:00
 * @LastEditTime: 2026-10-14 19:12:40
 * @LastEditors: 安知鱼
 */
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
)

// OSSOptions 描述连接一个阿里云OSS存储桶所需的参数
type OSSOptions struct {
	Bucket string
	// Endpoint 格式如: https://oss-cn-shanghai.aliyuncs.com
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// ossBucket 是 OSSStore 用到的 *oss.Bucket 方法子集
type ossBucket interface {
	IsObjectExist(objectKey string, options ...oss.Option) (bool, error)
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
	GetObject(objectKey string, options ...oss.Option) (io.ReadCloser, error)
	DeleteObject(objectKey string, options ...oss.Option) error
}

// OSSStore 实现了 IBlobStore 接口，用于处理与阿里云OSS的所有交互。
type OSSStore struct {
	bucket ossBucket
	prefix string
}

// NewOSSStore 创建OSS客户端并返回存储驱动
func NewOSSStore(opts OSSOptions) (*OSSStore, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("阿里云OSS配置缺少存储桶名称")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("阿里云OSS配置缺少AccessKey或SecretKey")
	}
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("阿里云OSS配置缺少Endpoint")
	}

	client, err := oss.New(opts.Endpoint, opts.AccessKey, opts.SecretKey)
	if err != nil {
		log.Printf("[阿里云OSS] 创建客户端失败: %v", err)
		return nil, fmt.Errorf("创建阿里云OSS客户端失败: %w", err)
	}
	bucket, err := client.Bucket(opts.Bucket)
	if err != nil {
		log.Printf("[阿里云OSS] 获取存储桶失败: %v", err)
		return nil, fmt.Errorf("获取阿里云OSS存储桶失败: %w", err)
	}

	log.Printf("[阿里云OSS] 成功创建客户端 - Endpoint: %s, 存储桶: %s", opts.Endpoint, opts.Bucket)
	return newOSSStoreWithBucket(bucket, opts.Prefix), nil
}

func newOSSStoreWithBucket(bucket ossBucket, prefix string) *OSSStore {
	return &OSSStore{bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *OSSStore) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Exists 检查对象是否存在于阿里云OSS中
func (s *OSSStore) Exists(ctx context.Context, key string) (bool, error) {
	exists, err := s.bucket.IsObjectExist(s.objectKey(key), oss.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("检查阿里云OSS对象是否存在失败: %w", err)
	}
	return exists, nil
}

// Create 使用 x-oss-forbid-overwrite 上传对象，对象已存在时返回 ErrObjectExists
func (s *OSSStore) Create(ctx context.Context, key string, data []byte) error {
	objectKey := s.objectKey(key)
	err := s.bucket.PutObject(objectKey, bytes.NewReader(data), oss.WithContext(ctx), oss.ForbidOverWrite(true))
	if err != nil {
		if ossErrorCode(err) == "FileAlreadyExists" {
			return fmt.Errorf("%w: %s", ErrObjectExists, key)
		}
		log.Printf("[阿里云OSS] 上传对象 '%s' 失败: %v", objectKey, err)
		return fmt.Errorf("%w: 上传到阿里云OSS失败: %v", constant.ErrIO, err)
	}
	return nil
}

// Open 获取对象的只读流
func (s *OSSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	body, err := s.bucket.GetObject(s.objectKey(key), oss.WithContext(ctx))
	if err != nil {
		switch {
		case ossErrorCode(err) == "NoSuchKey" || ossStatusCode(err) == http.StatusNotFound:
			return nil, fmt.Errorf("%w: 阿里云OSS对象不存在: %s", constant.ErrNotFound, key)
		case ossErrorCode(err) == "AccessDenied" || ossStatusCode(err) == http.StatusForbidden:
			return nil, fmt.Errorf("%w: 无权限读取阿里云OSS对象: %s", constant.ErrLocked, key)
		default:
			return nil, fmt.Errorf("从阿里云OSS获取文件失败: %w", err)
		}
	}
	return body, nil
}

// Delete 删除对象，OSS 对不存在的键同样返回成功
func (s *OSSStore) Delete(ctx context.Context, key string) error {
	if err := s.bucket.DeleteObject(s.objectKey(key), oss.WithContext(ctx)); err != nil && ossErrorCode(err) != "NoSuchKey" {
		return fmt.Errorf("%w: 删除阿里云OSS对象失败: %v", constant.ErrIO, err)
	}
	return nil
}

func ossErrorCode(err error) string {
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return ""
}

func ossStatusCode(err error) int {
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.StatusCode
	}
	return 0
}
