/*
 * @Description: multipart 图片上传编排：逐段读取请求体，完成校验、转码、落盘、入库并调度分析
 * @Author: 安知鱼
 * @Date: 2026-09-10 09:31:54
 * @LastEditTime: 2026-10-14 16:40:19
 * @LastEditors: 安知鱼
 */
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"path"
	"strings"
	"time"

	"github.com/anzhiyu-c/anheyu-gallery/internal/infra/storage"
	"github.com/anzhiyu-c/anheyu-gallery/internal/pkg/event"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/repository"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/idgen"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/analysis"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/exifdate"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/filename"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/filetype"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/metadata"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/transcode"
)

const (
	// MaxSections 是单个请求体最多读取的分段数
	MaxSections = 4096
	// maxFieldSize 是表单字段值的读取上限
	maxFieldSize = 4 << 10
)

// Deps 汇总上传编排依赖的组件
type Deps struct {
	Store      storage.IBlobStore
	Resolver   *filename.Resolver
	Transcoder *transcode.Transcoder
	Assembler  *metadata.Assembler
	Photos     repository.PhotoRepository
	Dispatcher *analysis.Dispatcher
	Applier    *analysis.Applier
	// Bus 可为 nil
	Bus *event.EventBus
}

// Options 是上传编排的可调参数
type Options struct {
	MaxFileSize int64
	// ViewPrivilege 是新图片默认的查看权限要求，空集合表示公开
	ViewPrivilege model.Boolset
}

// Service 是上传编排服务
type Service struct {
	deps     Deps
	opts     Options
	now      func() time.Time
	publicID func(id uint) (string, error)
}

// NewService 创建上传编排服务
func NewService(deps Deps, opts Options) *Service {
	return &Service{
		deps: deps,
		opts: opts,
		now:  time.Now,
		publicID: func(id uint) (string, error) {
			return idgen.GeneratePublicID(id, idgen.EntityTypePhoto)
		},
	}
}

// Ingest 顺序处理请求体中的每个分段。单个文件失败只记录日志并跳过；
// 有文件成功时返回已创建图片的摘要，全部失败时返回第一个文件的错误。
func (s *Service) Ingest(ctx context.Context, body io.Reader, boundary string, caller model.Identity) ([]*model.PhotoSummary, error) {
	if !caller.Can(model.PermissionCreatePhoto) {
		return nil, fmt.Errorf("%w: 没有上传图片的权限", constant.ErrForbidden)
	}
	if boundary == "" {
		return nil, fmt.Errorf("%w: 请求不是 multipart/form-data", constant.ErrBadRequest)
	}

	reader := multipart.NewReader(body, boundary)
	opts := &model.UploadBatchOptions{}
	summaries := make([]*model.PhotoSummary, 0)
	var pending []*analysis.Handle
	var firstErr error
	files := 0

	for section := 0; ; section++ {
		if section >= MaxSections {
			log.Printf("[UploadOrchestrator] 分段数超过上限 %d，忽略剩余内容", MaxSections)
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if files == 0 {
				return nil, fmt.Errorf("%w: 读取 multipart 分段失败: %v", constant.ErrBadRequest, err)
			}
			log.Printf("[UploadOrchestrator] 读取第 %d 个分段失败，停止读取: %v", section+1, err)
			break
		}

		if part.FileName() == "" {
			s.applyField(part, opts)
			part.Close()
			continue
		}

		files++
		cmd := opts.Snapshot(part.FileName(), s.now())
		opts.ResetFileOverrides()

		summary, handle, err := s.ingestFile(ctx, part, cmd)
		part.Close()
		// 已入库的图片即使后续步骤失败也要等待其分析结果
		if handle != nil {
			pending = append(pending, handle)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			log.Printf("[UploadOrchestrator] 文件 %q 入库失败，已跳过: %v", cmd.RawFilename, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		summaries = append(summaries, summary)
	}

	if len(pending) > 0 {
		s.deps.Dispatcher.Drain(ctx, pending, func(o analysis.Outcome) {
			if o.Err != nil {
				return
			}
			if err := s.deps.Applier.Apply(ctx, o.PhotoID, o.Result); err != nil {
				log.Printf("[UploadOrchestrator] 写回图片 %d 的分析结果失败: %v", o.PhotoID, err)
			}
		})
	}

	if len(summaries) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, fmt.Errorf("%w: 请求中没有文件", constant.ErrValidation)
	}
	return summaries, nil
}

// applyField 把表单字段写入批次选项，字段名大小写不敏感
func (s *Service) applyField(part *multipart.Part, opts *model.UploadBatchOptions) {
	raw, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
	if err != nil {
		log.Printf("[UploadOrchestrator] 读取字段 %q 失败: %v", part.FormName(), err)
		return
	}
	value := strings.TrimSpace(string(raw))

	switch strings.ToLower(part.FormName()) {
	case "title":
		opts.Title = value
	case "slug":
		opts.Slug = value
	case "summary":
		opts.Summary = value
	case "tags":
		opts.Tags = nil
		for _, t := range strings.Split(value, ",") {
			if t = strings.TrimSpace(t); t != "" {
				opts.Tags = append(opts.Tags, t)
			}
		}
	}
}

// ingestFile 处理单个文件分段
func (s *Service) ingestFile(ctx context.Context, part io.Reader, cmd model.UploadFileCommand) (*model.PhotoSummary, *analysis.Handle, error) {
	name, err := filename.Sanitize(cmd.RawFilename)
	if err != nil {
		return nil, nil, err
	}

	data, err := io.ReadAll(io.LimitReader(part, s.opts.MaxFileSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: 读取文件内容失败: %v", constant.ErrBadRequest, err)
	}
	if int64(len(data)) > s.opts.MaxFileSize {
		return nil, nil, fmt.Errorf("%w: 文件超过 %d 字节的大小限制", constant.ErrValidation, s.opts.MaxFileSize)
	}
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("%w: 文件为空", constant.ErrValidation)
	}

	_, ext := filename.SplitExt(name)
	format, err := filetype.ValidateBytes(ext, data)
	if err != nil {
		return nil, nil, err
	}

	bucket := metadata.DateBucket(cmd.UploadedAt)
	dirs := make([]string, 0, len(model.AllDimensions))
	for _, dim := range model.AllDimensions {
		dirs = append(dirs, path.Join(dim.String(), bucket))
	}
	reservation, err := s.deps.Resolver.Resolve(ctx, dirs, name)
	if err != nil {
		return nil, nil, err
	}
	defer reservation.Release()

	result, err := s.deps.Transcoder.Transcode(ctx, data, format)
	if err != nil {
		return nil, nil, err
	}

	source := model.FilepathRecord{
		Dimension: model.DimensionSource,
		Directory: path.Join(model.DimensionSource.String(), bucket),
		Filename:  reservation.Name,
		Size:      int64(len(data)),
		Width:     result.Width,
		Height:    result.Height,
	}
	derived := make([]model.FilepathRecord, 0, len(result.Derived))
	for _, rep := range result.Derived {
		derived = append(derived, model.FilepathRecord{
			Dimension: rep.Dimension,
			Directory: path.Join(rep.Dimension.String(), bucket),
			Filename:  reservation.Name,
			Size:      int64(len(rep.Data)),
			Width:     rep.Width,
			Height:    rep.Height,
		})
	}

	written, err := s.writeBlobs(ctx, source, data, derived, result.Derived)
	if err != nil {
		s.cleanup(ctx, written)
		return nil, nil, err
	}

	draft, err := s.deps.Assembler.Assemble(ctx, metadata.AssembleInput{
		Command:       cmd,
		SanitizedName: name,
		Conflicts:     reservation.Conflicts,
		Source:        source,
		Derived:       derived,
		CapturedAt:    exifdate.ExtractCaptureDate(data, ext),
		PrimaryColor:  result.PrimaryColor,
		ViewPrivilege: s.opts.ViewPrivilege,
	})
	if err != nil {
		s.cleanup(ctx, written)
		return nil, nil, err
	}
	tags, err := s.deps.Assembler.ResolveTags(ctx, draft)
	if err != nil {
		s.cleanup(ctx, written)
		return nil, nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	photo, err := s.deps.Photos.Create(ctx, draft, tags)
	if err != nil {
		s.cleanup(ctx, written)
		return nil, nil, err
	}
	log.Printf("[UploadOrchestrator] 图片 %d (%s) 入库成功，共 %d 个尺寸", photo.ID, photo.Slug, len(photo.Filepaths))

	if s.deps.Bus != nil {
		s.deps.Bus.Publish(constant.EventPhotoCreated, photo)
	}

	var handle *analysis.Handle
	if rep, ok := result.Smallest(); ok {
		handle = s.deps.Dispatcher.Schedule(ctx, photo.ID, rep.Data, rep.Dimension)
	}

	publicID, err := s.publicID(photo.ID)
	if err != nil {
		return nil, handle, fmt.Errorf("%w: 生成公共ID失败: %v", constant.ErrInternalServer, err)
	}
	return photo.ToSummary(publicID), handle, nil
}

// writeBlobs 按 source、medium、thumbnail 的顺序写入，返回已写入的对象键
func (s *Service) writeBlobs(ctx context.Context, source model.FilepathRecord, data []byte, derived []model.FilepathRecord, reps []transcode.Representation) ([]string, error) {
	var written []string
	write := func(key string, payload []byte) error {
		if err := s.deps.Store.Create(ctx, key, payload); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, storage.ErrObjectExists) {
				return fmt.Errorf("%w: 目标文件已被占用: %s", constant.ErrIO, key)
			}
			return fmt.Errorf("%w: 写入 %s 失败: %v", constant.ErrIO, key, err)
		}
		written = append(written, key)
		return nil
	}

	if err := write(source.Key(), data); err != nil {
		return written, err
	}
	for i, rec := range derived {
		if err := write(rec.Key(), reps[i].Data); err != nil {
			return written, err
		}
	}
	return written, nil
}

// cleanup 删除本文件已写入的对象，只在该文件未能入库时调用。
// 请求被取消时已写入的文件保持原样，不做回滚。
func (s *Service) cleanup(ctx context.Context, keys []string) {
	if ctx.Err() != nil {
		if len(keys) > 0 {
			log.Printf("[UploadOrchestrator] 请求已取消，保留已写入的 %d 个文件", len(keys))
		}
		return
	}
	for _, key := range keys {
		if err := s.deps.Store.Delete(context.Background(), key); err != nil {
			log.Printf("[UploadOrchestrator] 清理文件 %s 失败: %v", key, err)
		}
	}
}
