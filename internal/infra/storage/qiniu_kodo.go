/*
 * @Description: 七牛云Kodo存储驱动实现
 * @Author: 安知鱼
 * @Date: 2025-09-28 18:30:00
 * @LastEditTime: 2026-10-14 19:26:05
 * @LastEditors: 安知鱼
 */
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/qiniu/go-sdk/v7/auth"
	"github.com/qiniu/go-sdk/v7/storage"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
)

// kodoDownloadTTL 是读取对象时私有下载链接的有效期
const kodoDownloadTTL = time.Hour

// KodoOptions 描述连接一个七牛云存储空间所需的参数
type KodoOptions struct {
	Bucket string
	// Domain 是空间绑定的访问域名，缺少协议时默认使用 https
	Domain string
	// Region 为 z0(华东) / z1(华北) / z2(华南) / na0(北美) / as0(东南亚)
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// kodoAPI 是 KodoStore 依赖的最小操作集合
type kodoAPI interface {
	Stat(ctx context.Context, key string) error
	// PutInsertOnly 以 insertOnly 上传策略写入，已存在的键会被服务端拒绝
	PutInsertOnly(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) (*http.Response, error)
	Delete(ctx context.Context, key string) error
}

// KodoStore 实现了 IBlobStore 接口，用于处理与七牛云Kodo的所有交互。
type KodoStore struct {
	api    kodoAPI
	prefix string
}

// NewKodoStore 创建七牛云客户端并返回存储驱动
func NewKodoStore(opts KodoOptions) (*KodoStore, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("七牛云配置缺少存储空间名称")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("七牛云配置缺少AccessKey或SecretKey")
	}
	if opts.Domain == "" {
		return nil, fmt.Errorf("七牛云配置缺少访问域名")
	}

	domain := opts.Domain
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}

	cfg := &storage.Config{UseHTTPS: true, Region: kodoRegion(opts.Region)}
	mac := auth.New(opts.AccessKey, opts.SecretKey)
	client := &kodoClient{
		mac:      mac,
		bucket:   opts.Bucket,
		domain:   strings.TrimRight(domain, "/"),
		manager:  storage.NewBucketManager(mac, cfg),
		uploader: storage.NewFormUploader(cfg),
		http:     &http.Client{},
	}

	log.Printf("[七牛云] 成功创建客户端 - 存储空间: %s, 域名: %s", opts.Bucket, client.domain)
	return newKodoStoreWithAPI(client, opts.Prefix), nil
}

func newKodoStoreWithAPI(api kodoAPI, prefix string) *KodoStore {
	return &KodoStore{api: api, prefix: strings.Trim(prefix, "/")}
}

// kodoRegion 将区域简称转换为 SDK 的区域配置，默认华东
func kodoRegion(region string) *storage.Region {
	switch strings.ToLower(strings.TrimSpace(region)) {
	case "z1":
		return &storage.ZoneHuabei
	case "z2":
		return &storage.ZoneHuanan
	case "na0":
		return &storage.ZoneBeimei
	case "as0":
		return &storage.ZoneXinjiapo
	default:
		return &storage.ZoneHuadong
	}
}

func (s *KodoStore) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Exists 检查对象是否存在于七牛云中
func (s *KodoStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.api.Stat(ctx, s.objectKey(key)); err != nil {
		if isKodoNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("检查七牛云对象是否存在失败: %w", err)
	}
	return true, nil
}

// Create 使用 insertOnly 上传策略写入对象，对象已存在时返回 ErrObjectExists
func (s *KodoStore) Create(ctx context.Context, key string, data []byte) error {
	objectKey := s.objectKey(key)
	if err := s.api.PutInsertOnly(ctx, objectKey, data); err != nil {
		if isKodoExists(err) {
			return fmt.Errorf("%w: %s", ErrObjectExists, key)
		}
		log.Printf("[七牛云] 上传对象 '%s' 失败: %v", objectKey, err)
		return fmt.Errorf("%w: 上传到七牛云失败: %v", constant.ErrIO, err)
	}
	return nil
}

// Open 通过签名下载链接获取对象的只读流
func (s *KodoStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.api.Get(ctx, s.objectKey(key))
	if err != nil {
		return nil, fmt.Errorf("从七牛云获取文件失败: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: 七牛云对象不存在: %s", constant.ErrNotFound, key)
	case http.StatusUnauthorized, http.StatusForbidden:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: 无权限读取七牛云对象: %s", constant.ErrLocked, key)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("从七牛云获取文件失败: HTTP %d", resp.StatusCode)
	}
}

// Delete 删除对象，对象不存在时不报错
func (s *KodoStore) Delete(ctx context.Context, key string) error {
	if err := s.api.Delete(ctx, s.objectKey(key)); err != nil && !isKodoNotFound(err) {
		return fmt.Errorf("%w: 删除七牛云对象失败: %v", constant.ErrIO, err)
	}
	return nil
}

// 七牛云的错误码: 612 文件不存在, 614 目标资源已存在
func isKodoNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "612") || strings.Contains(msg, "no such file or directory")
}

func isKodoExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "614") || strings.Contains(msg, "file exists")
}

// kodoClient 是基于七牛云 SDK 的 kodoAPI 实现
type kodoClient struct {
	mac      *auth.Credentials
	bucket   string
	domain   string
	manager  *storage.BucketManager
	uploader *storage.FormUploader
	http     *http.Client
}

func (c *kodoClient) Stat(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.manager.Stat(c.bucket, key)
	return err
}

func (c *kodoClient) PutInsertOnly(ctx context.Context, key string, data []byte) error {
	putPolicy := storage.PutPolicy{
		Scope:      fmt.Sprintf("%s:%s", c.bucket, key),
		InsertOnly: 1,
	}
	upToken := putPolicy.UploadToken(c.mac)

	ret := storage.PutRet{}
	putExtra := storage.PutExtra{}
	return c.uploader.Put(ctx, &ret, upToken, key, bytes.NewReader(data), int64(len(data)), &putExtra)
}

func (c *kodoClient) Get(ctx context.Context, key string) (*http.Response, error) {
	deadline := time.Now().Add(kodoDownloadTTL).Unix()
	downloadURL := storage.MakePrivateURL(c.mac, c.domain, key, deadline)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

func (c *kodoClient) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.manager.Delete(c.bucket, key)
}
