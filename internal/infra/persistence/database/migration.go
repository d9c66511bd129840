/*
 * @Description: 数据库迁移服务（建表以及后续的字段补齐）
 * @Author: 安知鱼
 * @Date: 2025-12-08
 * @LastEditTime: 2026-10-14 14:31:06
 * @LastEditors: 安知鱼
 */
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// MigrationService 数据库迁移服务
type MigrationService struct {
	db     *sql.DB
	dbType string
}

// NewMigrationService 创建迁移服务
func NewMigrationService(db *sql.DB, dbType string) *MigrationService {
	return &MigrationService{
		db:     db,
		dbType: dbType,
	}
}

// RunMigrations 执行所有迁移
func (m *MigrationService) RunMigrations(ctx context.Context) error {
	log.Println("📋 开始执行数据库迁移...")

	statements, err := m.schema()
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行建表语句失败: %w", err)
		}
	}
	log.Println("  ✓ 数据表已就绪")

	// 早期版本的 photos 表没有 primary_color 字段
	if err := m.migratePrimaryColor(ctx); err != nil {
		return fmt.Errorf("primary_color 字段迁移失败: %w", err)
	}

	log.Println("✅ 数据库迁移完成")
	return nil
}

func (m *MigrationService) schema() ([]string, error) {
	switch m.dbType {
	case DialectMySQL:
		return []string{
			`CREATE TABLE IF NOT EXISTS photos (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
				slug VARCHAR(127) NOT NULL,
				title VARCHAR(255) NOT NULL,
				summary VARCHAR(255) NOT NULL DEFAULT '',
				description TEXT NOT NULL,
				date_bucket VARCHAR(10) NOT NULL,
				captured_at DATETIME(6) NOT NULL,
				uploaded_at DATETIME(6) NOT NULL,
				primary_color VARCHAR(16) NOT NULL DEFAULT '',
				view_privilege VARCHAR(255) NOT NULL DEFAULT '',
				created_at DATETIME(6) NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				UNIQUE KEY uk_photos_slug (slug),
				KEY idx_photos_date_bucket (date_bucket)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS photo_filepaths (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
				photo_id BIGINT UNSIGNED NOT NULL,
				dimension VARCHAR(16) NOT NULL,
				directory VARCHAR(255) NOT NULL,
				filename VARCHAR(255) NOT NULL,
				size BIGINT NOT NULL,
				width INT NOT NULL,
				height INT NOT NULL,
				UNIQUE KEY uk_photo_filepaths_dim (photo_id, dimension),
				CONSTRAINT fk_photo_filepaths_photo FOREIGN KEY (photo_id) REFERENCES photos (id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS tags (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				created_at DATETIME(6) NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				UNIQUE KEY uk_tags_name (name)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS photo_tags (
				photo_id BIGINT UNSIGNED NOT NULL,
				tag_id BIGINT UNSIGNED NOT NULL,
				PRIMARY KEY (photo_id, tag_id),
				CONSTRAINT fk_photo_tags_photo FOREIGN KEY (photo_id) REFERENCES photos (id) ON DELETE CASCADE,
				CONSTRAINT fk_photo_tags_tag FOREIGN KEY (tag_id) REFERENCES tags (id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}, nil

	case DialectPostgres:
		return []string{
			`CREATE TABLE IF NOT EXISTS photos (
				id BIGSERIAL PRIMARY KEY,
				slug VARCHAR(127) NOT NULL UNIQUE,
				title VARCHAR(255) NOT NULL,
				summary VARCHAR(255) NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				date_bucket VARCHAR(10) NOT NULL,
				captured_at TIMESTAMPTZ NOT NULL,
				uploaded_at TIMESTAMPTZ NOT NULL,
				primary_color VARCHAR(16) NOT NULL DEFAULT '',
				view_privilege VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_photos_date_bucket ON photos(date_bucket)`,
			`CREATE TABLE IF NOT EXISTS photo_filepaths (
				id BIGSERIAL PRIMARY KEY,
				photo_id BIGINT NOT NULL REFERENCES photos(id) ON DELETE CASCADE,
				dimension VARCHAR(16) NOT NULL,
				directory VARCHAR(255) NOT NULL,
				filename VARCHAR(255) NOT NULL,
				size BIGINT NOT NULL,
				width INTEGER NOT NULL,
				height INTEGER NOT NULL,
				UNIQUE (photo_id, dimension)
			)`,
			`CREATE TABLE IF NOT EXISTS tags (
				id BIGSERIAL PRIMARY KEY,
				name VARCHAR(255) NOT NULL UNIQUE,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS photo_tags (
				photo_id BIGINT NOT NULL REFERENCES photos(id) ON DELETE CASCADE,
				tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				PRIMARY KEY (photo_id, tag_id)
			)`,
		}, nil

	case DialectSQLite:
		return []string{
			`CREATE TABLE IF NOT EXISTS photos (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				slug TEXT NOT NULL UNIQUE,
				title TEXT NOT NULL,
				summary TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				date_bucket TEXT NOT NULL,
				captured_at TIMESTAMP NOT NULL,
				uploaded_at TIMESTAMP NOT NULL,
				primary_color TEXT NOT NULL DEFAULT '',
				view_privilege TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_photos_date_bucket ON photos(date_bucket)`,
			`CREATE TABLE IF NOT EXISTS photo_filepaths (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				photo_id INTEGER NOT NULL REFERENCES photos(id) ON DELETE CASCADE,
				dimension TEXT NOT NULL,
				directory TEXT NOT NULL,
				filename TEXT NOT NULL,
				size INTEGER NOT NULL,
				width INTEGER NOT NULL,
				height INTEGER NOT NULL,
				UNIQUE (photo_id, dimension)
			)`,
			`CREATE TABLE IF NOT EXISTS tags (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS photo_tags (
				photo_id INTEGER NOT NULL REFERENCES photos(id) ON DELETE CASCADE,
				tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				PRIMARY KEY (photo_id, tag_id)
			)`,
		}, nil
	}
	return nil, fmt.Errorf("不支持的数据库类型: %s", m.dbType)
}

// migratePrimaryColor 为旧表补齐 primary_color 字段
func (m *MigrationService) migratePrimaryColor(ctx context.Context) error {
	exists, err := m.columnExists(ctx, "photos", "primary_color")
	if err != nil {
		return err
	}
	if exists {
		log.Println("  ✓ primary_color 字段已存在，跳过迁移")
		return nil
	}

	log.Println("  → 添加 primary_color 字段...")
	stmt := `ALTER TABLE photos ADD COLUMN primary_color VARCHAR(16) NOT NULL DEFAULT ''`
	if m.dbType == DialectSQLite {
		stmt = `ALTER TABLE photos ADD COLUMN primary_color TEXT NOT NULL DEFAULT ''`
	}
	if _, err := m.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("添加 primary_color 字段失败: %w", err)
	}
	return nil
}

// columnExists 检查列是否存在
func (m *MigrationService) columnExists(ctx context.Context, tableName, columnName string) (bool, error) {
	var query string
	var args []interface{}

	switch m.dbType {
	case DialectMySQL:
		query = `
			SELECT COUNT(*)
			FROM INFORMATION_SCHEMA.COLUMNS
			WHERE TABLE_SCHEMA = DATABASE()
			AND TABLE_NAME = ?
			AND COLUMN_NAME = ?
		`
		args = []interface{}{tableName, columnName}

	case DialectPostgres:
		query = `
			SELECT COUNT(*)
			FROM information_schema.columns
			WHERE table_name = $1
			AND column_name = $2
		`
		args = []interface{}{tableName, columnName}

	case DialectSQLite:
		query = `
			SELECT COUNT(*)
			FROM pragma_table_info(?)
			WHERE name = ?
		`
		args = []interface{}{tableName, columnName}

	default:
		return false, fmt.Errorf("不支持的数据库类型: %s", m.dbType)
	}

	var count int
	err := m.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}
