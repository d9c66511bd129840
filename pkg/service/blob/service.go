/*
 * @Description: 图片二进制读取服务：权限校验、文件记录查询、打开文件并重新校验文件头
 * @Author: 安知鱼
 * @Date: 2026-09-12 10:05:33
 * @LastEditTime: 2026-10-14 17:02:48
 * @LastEditors: 安知鱼
 */
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/anzhiyu-c/anheyu-gallery/internal/infra/storage"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/repository"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/idgen"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/filetype"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/utility"
)

// FilepathCacheTTL 是文件记录缓存的有效期
const FilepathCacheTTL = 10 * time.Minute

// Blob 是一个待输出的图片文件流，调用方负责关闭 Reader
type Blob struct {
	Reader      io.ReadCloser
	ContentType string
	Size        int64
}

// Service 是图片二进制读取服务
type Service struct {
	photos repository.PhotoRepository
	store  storage.IBlobStore
	// cache 可为 nil
	cache utility.CacheService
}

// NewService 创建读取服务
func NewService(photos repository.PhotoRepository, store storage.IBlobStore, cache utility.CacheService) *Service {
	return &Service{photos: photos, store: store, cache: cache}
}

// FindPhoto 根据公共ID或 slug 查找图片并校验查看权限
func (s *Service) FindPhoto(ctx context.Context, ref string, caller model.Identity) (*model.Photo, error) {
	photo, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !caller.Satisfies(photo.ViewPrivilege) {
		if !caller.Authenticated {
			return nil, fmt.Errorf("%w: 查看该图片需要登录", constant.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: 没有查看该图片的权限", constant.ErrForbidden)
	}
	return photo, nil
}

// GetBlob 返回指定尺寸的文件流与按文件头识别出的内容类型
func (s *Service) GetBlob(ctx context.Context, ref string, dim model.Dimension, caller model.Identity) (*Blob, error) {
	if !dim.Valid() {
		return nil, fmt.Errorf("%w: 未知的尺寸等级 %q", constant.ErrBadRequest, dim)
	}
	photo, err := s.FindPhoto(ctx, ref, caller)
	if err != nil {
		return nil, err
	}

	record, err := s.filepath(ctx, photo.ID, dim)
	if err != nil {
		return nil, err
	}

	rc, err := s.open(ctx, record.Key())
	if err != nil {
		switch {
		case errors.Is(err, constant.ErrNotFound), errors.Is(err, constant.ErrLocked),
			errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: 打开文件 %s 失败: %v", constant.ErrInternalServer, record.Key(), err)
		}
	}

	header := make([]byte, filetype.HeaderSize)
	n, err := io.ReadFull(rc, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		rc.Close()
		return nil, fmt.Errorf("%w: 读取文件头失败: %v", constant.ErrInternalServer, err)
	}
	header = header[:n]

	format, ok := filetype.Detect(header)
	if !ok {
		rc.Close()
		log.Printf("[BlobService] 文件 %s 的文件头无法识别，可能已损坏或被篡改", record.Key())
		return nil, fmt.Errorf("%w: 无法识别的文件格式", constant.ErrInternalServer)
	}

	return &Blob{
		Reader:      &joinedReader{Reader: io.MultiReader(bytes.NewReader(header), rc), closer: rc},
		ContentType: format.MIME,
		Size:        record.Size,
	}, nil
}

func (s *Service) resolve(ctx context.Context, ref string) (*model.Photo, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: 图片标识为空", constant.ErrBadRequest)
	}
	if id, err := idgen.DecodePhotoID(ref); err == nil && isCanonical(id, ref) {
		photo, err := s.photos.FindByID(ctx, id)
		if err == nil {
			return photo, nil
		}
		if !errors.Is(err, constant.ErrNotFound) {
			return nil, err
		}
	}
	return s.photos.FindBySlug(ctx, ref)
}

// isCanonical 排除恰好能被解码的 slug
func isCanonical(id uint, ref string) bool {
	encoded, err := idgen.GeneratePublicID(id, idgen.EntityTypePhoto)
	return err == nil && encoded == ref
}

// filepath 先查缓存，未命中时查询仓储并回填
func (s *Service) filepath(ctx context.Context, photoID uint, dim model.Dimension) (*model.FilepathRecord, error) {
	key := FilepathCacheKey(photoID, dim)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil && raw != "" {
			var rec model.FilepathRecord
			if err := json.Unmarshal([]byte(raw), &rec); err == nil {
				return &rec, nil
			}
			log.Printf("[BlobService] 缓存 %s 内容无效，已忽略", key)
		}
	}

	rec, err := s.photos.FindFilepath(ctx, photoID, dim)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, photoID, *rec)
	return rec, nil
}

func (s *Service) remember(ctx context.Context, photoID uint, rec model.FilepathRecord) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, FilepathCacheKey(photoID, rec.Dimension), string(raw), FilepathCacheTTL); err != nil {
		log.Printf("[BlobService] 写入缓存 %s 失败: %v", FilepathCacheKey(photoID, rec.Dimension), err)
	}
}

// PrimeCache 预先缓存新图片全部尺寸的文件记录，作为 photo:created 事件的处理器
func (s *Service) PrimeCache(payload interface{}) {
	photo, ok := payload.(*model.Photo)
	if !ok || photo == nil {
		return
	}
	for _, rec := range photo.Filepaths {
		s.remember(context.Background(), photo.ID, rec)
	}
}

// open 在独立的 goroutine 中打开文件，ctx 取消时放弃等待并关闭迟到的文件流
func (s *Service) open(ctx context.Context, key string) (io.ReadCloser, error) {
	type result struct {
		rc  io.ReadCloser
		err error
	}
	ch := make(chan result, 1)
	go func() {
		rc, err := s.store.Open(ctx, key)
		ch <- result{rc: rc, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.rc != nil {
				r.rc.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		return r.rc, r.err
	}
}

// FilepathCacheKey 返回文件记录的缓存键
func FilepathCacheKey(photoID uint, dim model.Dimension) string {
	return fmt.Sprintf("photo:filepath:%d:%s", photoID, dim)
}

type joinedReader struct {
	io.Reader
	closer io.Closer
}

func (j *joinedReader) Close() error { return j.closer.Close() }
