/*
 * @Description: AWS S3 兼容存储驱动实现（使用aws-sdk-go-v2）
 * @Author: 安知鱼
 * @Date: 2025-09-28 19:00:00
 * @LastEditTime: 2026-10-14 14:02:17
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
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
)

// S3Options 描述连接一个 S3 兼容存储桶所需的参数
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// Prefix 会被拼接在所有对象键之前
	Prefix string
}

// s3API 是 S3Store 用到的 s3.Client 方法子集
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store 实现了 IBlobStore 接口，用于处理与AWS S3的所有交互。
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Store 创建S3客户端并返回存储驱动
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("AWS S3配置缺少存储桶名称")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("AWS S3配置缺少AccessKey或SecretKey")
	}

	region := opts.Region
	if region == "" {
		region = regionFromEndpoint(opts.Endpoint)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)),
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.Printf("[AWS S3] 创建配置失败: %v", err)
		return nil, fmt.Errorf("创建AWS S3配置失败: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true // 对于自定义endpoint通常需要path-style
		}
	})

	log.Printf("[AWS S3] 成功创建客户端 - 区域: %s, 存储桶: %s", region, opts.Bucket)
	return newS3StoreWithClient(client, opts.Bucket, opts.Prefix), nil
}

func newS3StoreWithClient(client s3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// regionFromEndpoint 尝试从 s3.<region>.amazonaws.com 形式的 endpoint 中提取区域
func regionFromEndpoint(endpoint string) string {
	const fallback = "us-east-1"
	if endpoint == "" {
		return fallback
	}
	parsedURL, err := url.Parse(endpoint)
	if err != nil || !strings.Contains(parsedURL.Host, "amazonaws.com") {
		return fallback
	}
	parts := strings.Split(parsedURL.Host, ".")
	if len(parts) >= 4 && strings.HasPrefix(parts[0], "s3") {
		return parts[1]
	}
	return fallback
}

func (s *S3Store) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Exists 检查文件是否存在于AWS S3中
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("检查AWS S3文件是否存在失败: %w", err)
	}
	return true, nil
}

// Create 使用条件写入 (If-None-Match: *) 上传对象，对象已存在时返回 ErrObjectExists
func (s *S3Store) Create(ctx context.Context, key string, data []byte) error {
	objectKey := s.objectKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		if apiErrorCode(err) == "PreconditionFailed" || apiErrorCode(err) == "ConditionalRequestConflict" {
			return fmt.Errorf("%w: %s", ErrObjectExists, key)
		}
		log.Printf("[AWS S3] 上传对象 '%s' 失败: %v", objectKey, err)
		return fmt.Errorf("%w: 上传到AWS S3失败: %v", constant.ErrIO, err)
	}
	return nil
}

// Open 获取对象的只读流
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		switch {
		case isS3NotFound(err):
			return nil, fmt.Errorf("%w: AWS S3对象不存在: %s", constant.ErrNotFound, key)
		case apiErrorCode(err) == "AccessDenied":
			return nil, fmt.Errorf("%w: 无权限读取AWS S3对象: %s", constant.ErrLocked, key)
		default:
			return nil, fmt.Errorf("从AWS S3获取文件失败: %w", err)
		}
	}
	return result.Body, nil
}

// Delete 删除对象，S3 对不存在的键同样返回成功
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("%w: 删除AWS S3对象失败: %v", constant.ErrIO, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	return apiErrorCode(err) == "NoSuchKey"
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
