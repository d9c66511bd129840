package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anzhiyu-c/anheyu-gallery/internal/infra/storage"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/repository"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/idgen"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/utility"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n', 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

type fakePhotoRepo struct {
	repository.PhotoRepository
	photos        map[uint]*model.Photo
	filepathCalls int
}

func (f *fakePhotoRepo) FindByID(_ context.Context, id uint) (*model.Photo, error) {
	if p, ok := f.photos[id]; ok {
		return p, nil
	}
	return nil, constant.ErrNotFound
}

func (f *fakePhotoRepo) FindBySlug(_ context.Context, slug string) (*model.Photo, error) {
	for _, p := range f.photos {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, constant.ErrNotFound
}

func (f *fakePhotoRepo) FindFilepath(ctx context.Context, id uint, dim model.Dimension) (*model.FilepathRecord, error) {
	f.filepathCalls++
	p, err := f.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, ok := p.Filepath(dim)
	if !ok {
		return nil, constant.ErrNotFound
	}
	return &rec, nil
}

type fixture struct {
	svc   *Service
	repo  *fakePhotoRepo
	store *storage.LocalStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, idgen.InitSqidsEncoderWithSeed("blob-test"))

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	source := model.FilepathRecord{
		Dimension: model.DimensionSource, Directory: "source/2026-10-14", Filename: "beach.png",
		Size: 64, Width: 20, Height: 10,
	}
	data := append(append([]byte(nil), pngHeader...), make([]byte, 48)...)
	require.NoError(t, store.Create(context.Background(), source.Key(), data))

	repo := &fakePhotoRepo{photos: map[uint]*model.Photo{
		1: {ID: 1, Slug: "2026-10-14-beach", Filepaths: []model.FilepathRecord{source}},
		2: {ID: 2, Slug: "private", ViewPrivilege: model.NewBoolset(model.PermissionViewPhoto), Filepaths: []model.FilepathRecord{source}},
	}}
	return &fixture{svc: NewService(repo, store, utility.NewMemoryCacheService()), repo: repo, store: store}
}

func anonymous() model.Identity { return model.Anonymous(nil) }

func TestGetBlobStreamsSniffedContent(t *testing.T) {
	f := newFixture(t)
	publicID, err := idgen.GeneratePublicID(1, idgen.EntityTypePhoto)
	require.NoError(t, err)

	for _, ref := range []string{publicID, "2026-10-14-beach"} {
		blob, err := f.svc.GetBlob(context.Background(), ref, model.DimensionSource, anonymous())
		require.NoError(t, err)
		require.Equal(t, "image/png", blob.ContentType)
		require.Equal(t, int64(64), blob.Size)

		body, err := io.ReadAll(blob.Reader)
		require.NoError(t, err)
		require.NoError(t, blob.Reader.Close())
		require.Len(t, body, 64)
		require.Equal(t, pngHeader, body[:len(pngHeader)])
	}
}

func TestGetBlobErrors(t *testing.T) {
	f := newFixture(t)
	member := model.Identity{UserID: 9, Authenticated: true, Permissions: model.NewBoolset(model.PermissionCreatePhoto)}
	viewer := model.Identity{UserID: 10, Authenticated: true, Permissions: model.NewBoolset(model.PermissionViewPhoto)}

	tests := []struct {
		name     string
		ref      string
		dim      model.Dimension
		caller   model.Identity
		expected error
	}{
		{name: "只有原图时请求中图", ref: "2026-10-14-beach", dim: model.DimensionMedium, caller: anonymous(), expected: constant.ErrNotFound},
		{name: "图片不存在", ref: "nope", dim: model.DimensionSource, caller: anonymous(), expected: constant.ErrNotFound},
		{name: "未知尺寸", ref: "2026-10-14-beach", dim: model.Dimension("huge"), caller: anonymous(), expected: constant.ErrBadRequest},
		{name: "游客无权查看", ref: "private", dim: model.DimensionSource, caller: anonymous(), expected: constant.ErrUnauthorized},
		{name: "登录用户无权查看", ref: "private", dim: model.DimensionSource, caller: member, expected: constant.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.GetBlob(context.Background(), tt.ref, tt.dim, tt.caller)
			require.ErrorIs(t, err, tt.expected)
		})
	}

	blob, err := f.svc.GetBlob(context.Background(), "private", model.DimensionSource, viewer)
	require.NoError(t, err)
	require.NoError(t, blob.Reader.Close())
}

func TestGetBlobMissingFileIsNotFound(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Delete(context.Background(), "source/2026-10-14/beach.png"))

	_, err := f.svc.GetBlob(context.Background(), "2026-10-14-beach", model.DimensionSource, anonymous())
	require.ErrorIs(t, err, constant.ErrNotFound)
}

func TestGetBlobCorruptedHeader(t *testing.T) {
	f := newFixture(t)
	p := filepath.Join(f.store.Root(), "source", "2026-10-14", "beach.png")
	require.NoError(t, os.WriteFile(p, []byte("this is not an image at all"), 0644))

	_, err := f.svc.GetBlob(context.Background(), "2026-10-14-beach", model.DimensionSource, anonymous())
	require.ErrorIs(t, err, constant.ErrInternalServer)
}

func TestGetBlobCachesFilepath(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		blob, err := f.svc.GetBlob(context.Background(), "2026-10-14-beach", model.DimensionSource, anonymous())
		require.NoError(t, err)
		require.NoError(t, blob.Reader.Close())
	}
	require.Equal(t, 1, f.repo.filepathCalls)
}

func TestPrimeCache(t *testing.T) {
	f := newFixture(t)
	f.svc.PrimeCache(f.repo.photos[1])
	f.svc.PrimeCache("不是图片")

	raw, err := f.svc.cache.Get(context.Background(), FilepathCacheKey(1, model.DimensionSource))
	require.NoError(t, err)
	require.Contains(t, raw, "beach.png")

	blob, err := f.svc.GetBlob(context.Background(), "2026-10-14-beach", model.DimensionSource, anonymous())
	require.NoError(t, err)
	require.NoError(t, blob.Reader.Close())
	require.Zero(t, f.repo.filepathCalls)
}

type slowStore struct {
	storage.IBlobStore
	release chan struct{}
}

func (s *slowStore) Open(context.Context, string) (io.ReadCloser, error) {
	<-s.release
	return nil, errors.New("迟到的结果")
}

func TestGetBlobHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	slow := &slowStore{release: make(chan struct{})}
	defer close(slow.release)
	svc := NewService(f.repo, slow, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.GetBlob(ctx, "2026-10-14-beach", model.DimensionSource, anonymous())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
