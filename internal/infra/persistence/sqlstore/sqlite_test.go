package sqlstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anzhiyu-c/anheyu-gallery/internal/infra/persistence/database"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/service/metadata"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// newSQLiteStore 在临时目录中创建一个执行过迁移的真实 SQLite 库
func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "gallery.db") + "?_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.NewMigrationService(db, database.DialectSQLite).RunMigrations(context.Background()))
	return NewStore(db, database.DialectSQLite, false)
}

func TestSlugsWithPrefixSpansDateBuckets(t *testing.T) {
	store := newSQLiteStore(t)
	repo := NewPhotoRepository(store)
	ctx := context.Background()

	first := sampleDraft()
	first.Slug = "sunset"
	first.DateBucket = "2026-10-13"
	_, err := repo.Create(ctx, first, nil)
	require.NoError(t, err)

	slugs, err := repo.SlugsWithPrefix(ctx, "sunset")
	require.NoError(t, err)
	require.Equal(t, []string{"sunset"}, slugs, "其他日期分桶中的 slug 也必须参与去重")
}

func TestOverrideSlugReusedOnLaterDay(t *testing.T) {
	store := newSQLiteStore(t)
	photos := NewPhotoRepository(store)
	tags := NewTagRepository(store)
	assembler := metadata.NewAssembler(photos, tags, metadata.Thresholds{Large: 5 << 20, Small: 1 << 20})
	ctx := context.Background()

	days := []time.Time{
		time.Date(2026, 10, 13, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
	}
	expected := []string{"sunset", "sunset-2"}

	for i, day := range days {
		bucket := metadata.DateBucket(day)
		draft, err := assembler.Assemble(ctx, metadata.AssembleInput{
			Command:       model.UploadFileCommand{RawFilename: "beach.jpg", Slug: "sunset", UploadedAt: day},
			SanitizedName: "beach.jpg",
			Source: model.FilepathRecord{
				Dimension: model.DimensionSource, Directory: "source/" + bucket, Filename: "beach.jpg",
				Size: 2048, Width: 64, Height: 48,
			},
		})
		require.NoError(t, err)
		require.Equal(t, expected[i], draft.Slug)

		_, err = photos.Create(ctx, draft, nil)
		require.NoError(t, err, "第 %d 次上传不应违反 slug 唯一约束", i+1)
	}
}
