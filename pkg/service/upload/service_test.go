package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/anzhiyu-c/anheyu-gallery/internal/infra/storage"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/analysis"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/filename"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/metadata"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/transcode"
)

// memPhotoRepo 是并发安全的内存图片仓储
type memPhotoRepo struct {
	mu     sync.Mutex
	nextID uint
	photos map[uint]*model.Photo
}

func newMemPhotoRepo() *memPhotoRepo {
	return &memPhotoRepo{photos: make(map[uint]*model.Photo)}
}

func (r *memPhotoRepo) Create(_ context.Context, d *model.PhotoDraft, tags []*model.Tag) (*model.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.photos {
		if p.Slug == d.Slug {
			return nil, fmt.Errorf("%w: slug 重复", constant.ErrExternal)
		}
	}
	r.nextID++
	p := &model.Photo{
		ID: r.nextID, Slug: d.Slug, Title: d.Title, Summary: d.Summary, Description: d.Description,
		DateBucket: d.DateBucket, CapturedAt: d.CapturedAt, UploadedAt: d.UploadedAt,
		PrimaryColor: d.PrimaryColor, ViewPrivilege: d.ViewPrivilege,
		Filepaths: append([]model.FilepathRecord(nil), d.Filepaths...),
		Tags:      append([]*model.Tag(nil), tags...),
	}
	r.photos[p.ID] = p
	return p, nil
}

func (r *memPhotoRepo) FindByID(_ context.Context, id uint) (*model.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.photos[id]
	if !ok {
		return nil, constant.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPhotoRepo) FindBySlug(_ context.Context, slug string) (*model.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.photos {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, constant.ErrNotFound
}

func (r *memPhotoRepo) FindFilepath(ctx context.Context, id uint, dim model.Dimension) (*model.FilepathRecord, error) {
	p, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, ok := p.Filepath(dim)
	if !ok {
		return nil, constant.ErrNotFound
	}
	return &rec, nil
}

func (r *memPhotoRepo) SlugsWithPrefix(_ context.Context, prefix string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, p := range r.photos {
		if strings.HasPrefix(p.Slug, prefix) {
			out = append(out, p.Slug)
		}
	}
	return out, nil
}

func (r *memPhotoRepo) UpdateText(_ context.Context, id uint, summary, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.photos[id]
	if !ok {
		return constant.ErrNotFound
	}
	p.Summary, p.Description = summary, description
	return nil
}

func (r *memPhotoRepo) AttachTags(_ context.Context, id uint, tags []*model.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.photos[id]
	if !ok {
		return constant.ErrNotFound
	}
	p.Tags = append(p.Tags, tags...)
	return nil
}

func (r *memPhotoRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.photos)
}

type memTagRepo struct {
	mu     sync.Mutex
	byName map[string]*model.Tag
}

func (r *memTagRepo) FindOrCreate(_ context.Context, names []string) ([]*model.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byName == nil {
		r.byName = make(map[string]*model.Tag)
	}
	out := make([]*model.Tag, 0, len(names))
	for _, n := range names {
		t, ok := r.byName[n]
		if !ok {
			t = &model.Tag{ID: uint(len(r.byName) + 1), Name: n}
			r.byName[n] = t
		}
		out = append(out, t)
	}
	return out, nil
}

type stubInferrer struct {
	result *model.AnalysisResult
	err    error
}

func (s stubInferrer) Infer(context.Context, []byte, model.Dimension) (*model.AnalysisResult, error) {
	return s.result, s.err
}

var uploadDay = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	photos *memPhotoRepo
	store  *storage.LocalStore
}

func newFixture(t *testing.T, inferrer analysis.Inferrer) *fixture {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	photos := newMemPhotoRepo()
	tags := &memTagRepo{}

	svc := NewService(Deps{
		Store:      store,
		Resolver:   filename.NewResolver(store),
		Transcoder: transcode.NewTranscoder(),
		Assembler:  metadata.NewAssembler(photos, tags, metadata.Thresholds{Large: 5 << 20, Small: 1 << 20}),
		Photos:     photos,
		Dispatcher: analysis.NewDispatcher(inferrer),
		Applier:    analysis.NewApplier(photos, tags),
	}, Options{MaxFileSize: 20 << 20})
	svc.now = func() time.Time { return uploadDay }
	svc.publicID = func(id uint) (string, error) { return fmt.Sprintf("p%d", id), nil }
	return &fixture{svc: svc, photos: photos, store: store}
}

type formPart struct {
	field    string
	value    string
	filename string
	data     []byte
}

func buildBody(t *testing.T, parts ...formPart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename != "" {
			fw, err := w.CreateFormFile("file", p.filename)
			require.NoError(t, err)
			_, err = fw.Write(p.data)
			require.NoError(t, err)
			continue
		}
		require.NoError(t, w.WriteField(p.field, p.value))
	}
	require.NoError(t, w.Close())
	return &buf, w.Boundary()
}

func jpegOf(t *testing.T, w, h int, padTo int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 30, G: 140, B: 200, A: 255}), imaging.JPEG))
	if padTo > buf.Len() {
		buf.Write(make([]byte, padTo-buf.Len()))
	}
	return buf.Bytes()
}

func uploader() model.Identity {
	return model.Identity{UserID: 1, Authenticated: true, Permissions: model.NewBoolset(model.PermissionCreatePhoto)}
}

func hasTag(s *model.PhotoSummary, name string) bool {
	for _, t := range s.Tags {
		if t == name {
			return true
		}
	}
	return false
}

func TestIngestLargeJPEG(t *testing.T) {
	f := newFixture(t, nil)
	data := jpegOf(t, 2000, 1500, 9_000_000)
	body, boundary := buildBody(t, formPart{filename: "beach.jpg", data: data})

	got, err := f.svc.Ingest(context.Background(), body, boundary, uploader())
	require.NoError(t, err)
	require.Len(t, got, 1)

	s := got[0]
	require.Equal(t, "beach.jpg", s.Title)
	require.Equal(t, "2026-10-14-beach", s.Slug)
	require.True(t, hasTag(s, metadata.TagHD))
	require.False(t, hasTag(s, metadata.TagCopy))

	dims := make([]model.Dimension, 0, len(s.Representations))
	for _, r := range s.Representations {
		dims = append(dims, r.Dimension)
	}
	require.Equal(t, []model.Dimension{model.DimensionSource, model.DimensionMedium, model.DimensionThumbnail}, dims)

	for _, dim := range model.AllDimensions {
		_, err := os.Stat(filepath.Join(f.store.Root(), dim.String(), "2026-10-14", "beach.jpg"))
		require.NoError(t, err, "缺少 %s 文件", dim)
	}

	// 原图记录的字节数必须等于上传内容的长度
	require.Equal(t, int64(len(data)), s.Representations[0].Size)
	persisted, err := f.photos.FindByID(context.Background(), 1)
	require.NoError(t, err)
	src, ok := persisted.Filepath(model.DimensionSource)
	require.True(t, ok)
	require.Equal(t, int64(len(data)), src.Size)
	info, err := os.Stat(filepath.Join(f.store.Root(), filepath.FromSlash(src.Key())))
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), info.Size())
}

func TestIngestDuplicateNamesInOneRequest(t *testing.T) {
	f := newFixture(t, nil)
	img := jpegOf(t, 400, 300, 0)
	body, boundary := buildBody(t,
		formPart{filename: "beach.jpg", data: img},
		formPart{filename: "beach.jpg", data: img},
	)

	got, err := f.svc.Ingest(context.Background(), body, boundary, uploader())
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.False(t, hasTag(got[0], metadata.TagCopy))
	require.True(t, hasTag(got[1], metadata.TagCopy))
	require.Equal(t, "beach.jpg (#1)", got[1].Title)
	require.Equal(t, "2026-10-14-beach-2", got[1].Slug)

	second, err := f.photos.FindByID(context.Background(), 2)
	require.NoError(t, err)
	src, ok := second.Filepath(model.DimensionSource)
	require.True(t, ok)
	require.Contains(t, src.Filename, "_copy")
}

func TestIngestSignatureMismatch(t *testing.T) {
	f := newFixture(t, nil)
	png := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}, make([]byte, 64)...)
	body, boundary := buildBody(t, formPart{filename: "photo.jpg", data: png})

	_, err := f.svc.Ingest(context.Background(), body, boundary, uploader())
	require.ErrorIs(t, err, constant.ErrFormat)
	require.Zero(t, f.photos.count())

	entries, err := os.ReadDir(f.store.Root())
	require.NoError(t, err)
	require.Empty(t, entries, "不应写入任何文件")
}

func TestIngestFieldsApplyToNextFileOnly(t *testing.T) {
	f := newFixture(t, nil)
	img := jpegOf(t, 300, 200, 0)
	body, boundary := buildBody(t,
		formPart{field: "Title", value: "日落"},
		formPart{field: "tags", value: "海边, 旅行 ,"},
		formPart{field: "slug", value: "sunset"},
		formPart{filename: "a.jpg", data: img},
		formPart{filename: "b.jpg", data: img},
	)

	got, err := f.svc.Ingest(context.Background(), body, boundary, uploader())
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, "日落", got[0].Title)
	require.Equal(t, "sunset", got[0].Slug)
	require.Equal(t, []string{"海边", "旅行", metadata.TagSD}, got[0].Tags)

	require.Equal(t, "b.jpg", got[1].Title)
	require.Equal(t, "2026-10-14-b", got[1].Slug)
	require.Equal(t, []string{metadata.TagSD}, got[1].Tags)
}

func TestIngestSkipsFailedFileAndContinues(t *testing.T) {
	f := newFixture(t, nil)
	body, boundary := buildBody(t,
		formPart{filename: "notes.txt", data: []byte("hello")},
		formPart{filename: "ok.jpg", data: jpegOf(t, 300, 200, 0)},
	)

	got, err := f.svc.Ingest(context.Background(), body, boundary, uploader())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "ok.jpg", got[0].Title)
}

func TestIngestRejections(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.opts.MaxFileSize = 1024

	tests := []struct {
		name     string
		caller   model.Identity
		parts    []formPart
		boundary string
		expected error
	}{
		{name: "没有上传权限", caller: model.Anonymous(model.NewBoolset(model.PermissionViewPhoto)), parts: []formPart{{filename: "a.jpg", data: []byte{1}}}, expected: constant.ErrForbidden},
		{name: "缺少边界", caller: uploader(), boundary: "-", expected: constant.ErrBadRequest},
		{name: "没有文件", caller: uploader(), parts: []formPart{{field: "title", value: "x"}}, expected: constant.ErrValidation},
		{name: "超过大小限制", caller: uploader(), parts: []formPart{{filename: "big.jpg", data: jpegOf(t, 64, 64, 4096)}}, expected: constant.ErrValidation},
		{name: "空文件", caller: uploader(), parts: []formPart{{filename: "empty.jpg", data: nil}}, expected: constant.ErrValidation},
		{name: "不支持的扩展名", caller: uploader(), parts: []formPart{{filename: "doc.pdf", data: []byte("%PDF-1.4")}}, expected: constant.ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, boundary := buildBody(t, tt.parts...)
			if tt.boundary == "-" {
				boundary = ""
			}
			_, err := f.svc.Ingest(context.Background(), body, boundary, tt.caller)
			require.ErrorIs(t, err, tt.expected)
		})
	}
	require.Zero(t, f.photos.count())
}

func TestIngestAppliesAnalysis(t *testing.T) {
	f := newFixture(t, stubInferrer{result: &model.AnalysisResult{
		Summary:     "金色的海滩",
		Description: "傍晚的海边，远处有帆船。",
		Tags:        []string{"海滩", "  "},
	}})
	body, boundary := buildBody(t, formPart{filename: "beach.jpg", data: jpegOf(t, 800, 600, 0)})

	got, err := f.svc.Ingest(context.Background(), body, boundary, uploader())
	require.NoError(t, err)
	require.Len(t, got, 1)

	p, err := f.photos.FindByID(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(p.Summary, " 金色的海滩"))
	require.True(t, strings.HasSuffix(p.Description, "\n\n傍晚的海边，远处有帆船。"))
	require.Contains(t, p.TagNames(), "海滩")
}

func TestIngestPublicIDFailureStillAppliesAnalysis(t *testing.T) {
	f := newFixture(t, stubInferrer{result: &model.AnalysisResult{Summary: "金色的海滩"}})
	f.svc.publicID = func(uint) (string, error) { return "", errors.New("编码器未初始化") }
	body, boundary := buildBody(t, formPart{filename: "beach.jpg", data: jpegOf(t, 800, 600, 0)})

	_, err := f.svc.Ingest(context.Background(), body, boundary, uploader())
	require.ErrorIs(t, err, constant.ErrInternalServer)
	require.Equal(t, 1, f.photos.count())

	p, err := f.photos.FindByID(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(p.Summary, " 金色的海滩"), "已入库图片的分析结果必须写回")
}

func TestIngestAnalysisFailureKeepsPhoto(t *testing.T) {
	f := newFixture(t, stubInferrer{err: errors.New("模型不可用")})
	body, boundary := buildBody(t, formPart{filename: "beach.jpg", data: jpegOf(t, 800, 600, 0)})

	got, err := f.svc.Ingest(context.Background(), body, boundary, uploader())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 1, f.photos.count())
}

func TestIngestCanceledContext(t *testing.T) {
	f := newFixture(t, nil)
	body, boundary := buildBody(t, formPart{filename: "a.jpg", data: jpegOf(t, 300, 200, 0)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Ingest(ctx, body, boundary, uploader())
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, f.photos.count())
}

// cancelAfterWrites 在第 n 次写入成功后取消请求
type cancelAfterWrites struct {
	storage.IBlobStore
	n      int
	writes int
	cancel context.CancelFunc
}

func (c *cancelAfterWrites) Create(ctx context.Context, key string, data []byte) error {
	if err := c.IBlobStore.Create(ctx, key, data); err != nil {
		return err
	}
	c.writes++
	if c.writes == c.n {
		c.cancel()
	}
	return nil
}

func TestIngestCancelKeepsWrittenFiles(t *testing.T) {
	tests := []struct {
		name      string
		cancelAt  int
		remaining []model.Dimension
	}{
		{name: "写完原图后取消", cancelAt: 1, remaining: []model.Dimension{model.DimensionSource}},
		{name: "全部写完入库前取消", cancelAt: 2, remaining: []model.Dimension{model.DimensionSource, model.DimensionThumbnail}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			f.svc.deps.Store = &cancelAfterWrites{IBlobStore: f.store, n: tt.cancelAt, cancel: cancel}

			body, boundary := buildBody(t, formPart{filename: "beach.jpg", data: jpegOf(t, 800, 600, 0)})
			_, err := f.svc.Ingest(ctx, body, boundary, uploader())
			require.ErrorIs(t, err, context.Canceled)
			require.Zero(t, f.photos.count())

			for _, dim := range tt.remaining {
				_, err := os.Stat(filepath.Join(f.store.Root(), dim.String(), "2026-10-14", "beach.jpg"))
				require.NoError(t, err, "取消后已写入的 %s 文件不应被删除", dim)
			}
		})
	}
}
