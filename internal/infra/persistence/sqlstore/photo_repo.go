/*
 * @Description: 图片仓储的 SQL 实现
 * @Author: 安知鱼
 * @Date: 2026-09-03 10:40:02
 * @LastEditTime: 2026-10-14 15:03:44
 * @LastEditors: 安知鱼
 */
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anzhiyu-c/anheyu-gallery/pkg/constant"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/model"
	"github.com/anzhiyu-c/anheyu-gallery/pkg/domain/repository"
)

const photoColumns = `id, slug, title, summary, description, date_bucket, captured_at, uploaded_at,
	primary_color, view_privilege, created_at, updated_at`

type sqlPhotoRepository struct {
	store *Store
	now   func() time.Time
}

// NewPhotoRepository 是 sqlPhotoRepository 的构造函数
func NewPhotoRepository(store *Store) repository.PhotoRepository {
	return &sqlPhotoRepository{store: store, now: time.Now}
}

// Create 在一个事务中写入图片、文件记录与标签关联
func (r *sqlPhotoRepository) Create(ctx context.Context, draft *model.PhotoDraft, tags []*model.Tag) (*model.Photo, error) {
	now := r.now().UTC()
	photo := &model.Photo{
		CreatedAt:     now,
		UpdatedAt:     now,
		Slug:          draft.Slug,
		Title:         draft.Title,
		Summary:       draft.Summary,
		Description:   draft.Description,
		DateBucket:    draft.DateBucket,
		CapturedAt:    draft.CapturedAt.UTC(),
		UploadedAt:    draft.UploadedAt.UTC(),
		PrimaryColor:  draft.PrimaryColor,
		ViewPrivilege: draft.ViewPrivilege,
		Filepaths:     append([]model.FilepathRecord(nil), draft.Filepaths...),
		Tags:          tags,
	}

	err := r.store.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		id, err := r.store.insertReturningID(ctx, tx,
			`INSERT INTO photos (slug, title, summary, description, date_bucket, captured_at, uploaded_at,
				primary_color, view_privilege, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			photo.Slug, photo.Title, photo.Summary, photo.Description, photo.DateBucket,
			photo.CapturedAt, photo.UploadedAt, photo.PrimaryColor, photo.ViewPrivilege, now, now,
		)
		if err != nil {
			return fmt.Errorf("写入图片记录失败: %w", err)
		}
		photo.ID = id

		insertPath := r.store.q(`INSERT INTO photo_filepaths (photo_id, dimension, directory, filename, size, width, height)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		for _, fp := range photo.Filepaths {
			if _, err := tx.ExecContext(ctx, insertPath, id, string(fp.Dimension), fp.Directory, fp.Filename, fp.Size, fp.Width, fp.Height); err != nil {
				return fmt.Errorf("写入 %s 文件记录失败: %w", fp.Dimension, err)
			}
		}

		return r.attachTags(ctx, tx, id, tags)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constant.ErrExternal, err)
	}
	return photo, nil
}

// FindByID 根据主键查找图片
func (r *sqlPhotoRepository) FindByID(ctx context.Context, id uint) (*model.Photo, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindBySlug 根据 slug 查找图片
func (r *sqlPhotoRepository) FindBySlug(ctx context.Context, slug string) (*model.Photo, error) {
	return r.findOne(ctx, "slug = ?", slug)
}

func (r *sqlPhotoRepository) findOne(ctx context.Context, where string, arg any) (*model.Photo, error) {
	p := &model.Photo{}
	err := r.store.db.QueryRowContext(ctx, r.store.q("SELECT "+photoColumns+" FROM photos WHERE "+where), arg).Scan(
		&p.ID, &p.Slug, &p.Title, &p.Summary, &p.Description, &p.DateBucket, &p.CapturedAt, &p.UploadedAt,
		&p.PrimaryColor, &p.ViewPrivilege, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: 图片不存在", constant.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: 查询图片失败: %v", constant.ErrExternal, err)
	}

	if p.Filepaths, err = r.loadFilepaths(ctx, p.ID); err != nil {
		return nil, err
	}
	if p.Tags, err = r.loadTags(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *sqlPhotoRepository) loadFilepaths(ctx context.Context, photoID uint) ([]model.FilepathRecord, error) {
	rows, err := r.store.db.QueryContext(ctx, r.store.q(
		`SELECT dimension, directory, filename, size, width, height FROM photo_filepaths WHERE photo_id = ?`), photoID)
	if err != nil {
		return nil, fmt.Errorf("%w: 查询文件记录失败: %v", constant.ErrExternal, err)
	}
	defer rows.Close()

	var records []model.FilepathRecord
	for rows.Next() {
		var rec model.FilepathRecord
		var dim string
		if err := rows.Scan(&dim, &rec.Directory, &rec.Filename, &rec.Size, &rec.Width, &rec.Height); err != nil {
			return nil, fmt.Errorf("%w: 读取文件记录失败: %v", constant.ErrExternal, err)
		}
		rec.Dimension = model.Dimension(dim)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", constant.ErrExternal, err)
	}
	return sortByDimension(records), nil
}

func (r *sqlPhotoRepository) loadTags(ctx context.Context, photoID uint) ([]*model.Tag, error) {
	rows, err := r.store.db.QueryContext(ctx, r.store.q(
		`SELECT t.id, t.created_at, t.updated_at, t.name FROM tags t
			JOIN photo_tags pt ON pt.tag_id = t.id
			WHERE pt.photo_id = ? ORDER BY t.name`), photoID)
	if err != nil {
		return nil, fmt.Errorf("%w: 查询图片标签失败: %v", constant.ErrExternal, err)
	}
	defer rows.Close()

	tags := []*model.Tag{}
	for rows.Next() {
		t := &model.Tag{}
		if err := rows.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.Name); err != nil {
			return nil, fmt.Errorf("%w: 读取标签失败: %v", constant.ErrExternal, err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", constant.ErrExternal, err)
	}
	return tags, nil
}

// FindFilepath 查找图片某个尺寸的文件记录，图片或尺寸不存在时都返回 ErrNotFound
func (r *sqlPhotoRepository) FindFilepath(ctx context.Context, photoID uint, dim model.Dimension) (*model.FilepathRecord, error) {
	rec := &model.FilepathRecord{Dimension: dim}
	err := r.store.db.QueryRowContext(ctx, r.store.q(
		`SELECT directory, filename, size, width, height FROM photo_filepaths WHERE photo_id = ? AND dimension = ?`),
		photoID, string(dim),
	).Scan(&rec.Directory, &rec.Filename, &rec.Size, &rec.Width, &rec.Height)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: 图片 %d 没有 %s 尺寸", constant.ErrNotFound, photoID, dim)
		}
		return nil, fmt.Errorf("%w: 查询文件记录失败: %v", constant.ErrExternal, err)
	}
	return rec, nil
}

// SlugsWithPrefix 返回全表中以 prefix 开头的全部 slug
func (r *sqlPhotoRepository) SlugsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.store.db.QueryContext(ctx, r.store.q(
		`SELECT slug FROM photos WHERE slug LIKE ? ESCAPE '!'`),
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: 查询 slug 失败: %v", constant.ErrExternal, err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("%w: %v", constant.ErrExternal, err)
		}
		slugs = append(slugs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", constant.ErrExternal, err)
	}
	return slugs, nil
}

// UpdateText 覆盖写入摘要与描述
func (r *sqlPhotoRepository) UpdateText(ctx context.Context, photoID uint, summary, description string) error {
	res, err := r.store.db.ExecContext(ctx, r.store.q(
		`UPDATE photos SET summary = ?, description = ?, updated_at = ? WHERE id = ?`),
		summary, description, r.now().UTC(), photoID,
	)
	if err != nil {
		return fmt.Errorf("%w: 更新图片文本失败: %v", constant.ErrExternal, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", constant.ErrExternal, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: 图片 %d 不存在", constant.ErrNotFound, photoID)
	}
	return nil
}

// AttachTags 为图片追加标签
func (r *sqlPhotoRepository) AttachTags(ctx context.Context, photoID uint, tags []*model.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	err := r.store.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		return r.attachTags(ctx, tx, photoID, tags)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", constant.ErrExternal, err)
	}
	return nil
}

func (r *sqlPhotoRepository) attachTags(ctx context.Context, tx DBTX, photoID uint, tags []*model.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	insert := r.store.q(r.store.insertIgnore("photo_tags", "photo_id", "tag_id"))
	for _, t := range tags {
		if _, err := tx.ExecContext(ctx, insert, photoID, t.ID); err != nil {
			return fmt.Errorf("关联标签 '%s' 失败: %w", t.Name, err)
		}
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

// sortByDimension 按 source、medium、thumbnail 的顺序排列
func sortByDimension(records []model.FilepathRecord) []model.FilepathRecord {
	sorted := make([]model.FilepathRecord, 0, len(records))
	for _, dim := range model.AllDimensions {
		for _, rec := range records {
			if rec.Dimension == dim {
				sorted = append(sorted, rec)
			}
		}
	}
	return sorted
}
