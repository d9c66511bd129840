/*
 * @Description: 基于 database/sql 的仓储公共设施：方言占位符、事务、冲突忽略写入
 * @Author: 安知鱼
 * @Date: 2026-09-03 10:12:40
 * @LastEditTime: 2026-10-14 14:46:13
 * @LastEditors: 安知鱼
 */
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/anzhiyu-c/anheyu-gallery/internal/infra/persistence/database"
)

// DBTX 是仓储用到的 database/sql 方法子集，*sql.DB 与 *sql.Tx 都满足它
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store 持有连接池和方言，所有仓储共享一个 Store
type Store struct {
	db      *sql.DB
	dialect string
	debug   bool
}

// NewStore 创建 Store，debug 为 true 时打印每条执行的 SQL
func NewStore(db *sql.DB, dialect string, debug bool) *Store {
	if debug {
		log.Println("【数据库】Debug模式已开启，将打印所有执行的SQL语句。")
	}
	return &Store{db: db, dialect: dialect, debug: debug}
}

// q 把以 ? 书写的语句转换成当前方言的占位符
func (s *Store) q(query string) string {
	if s.dialect == database.DialectPostgres {
		query = rebindDollar(query)
	}
	if s.debug {
		log.Printf("[SQLStore] %s", strings.Join(strings.Fields(query), " "))
	}
	return query
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// insertIgnore 生成一条遇到唯一键冲突时什么都不做的 INSERT 语句
func (s *Store) insertIgnore(table string, columns ...string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	cols := strings.Join(columns, ", ")
	switch s.dialect {
	case database.DialectMySQL:
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", table, cols, placeholders)
	case database.DialectSQLite:
		return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)", table, cols, placeholders)
	default:
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING", table, cols, placeholders)
	}
}

// insertReturningID 执行 INSERT 并返回自增主键，postgres 使用 RETURNING id
func (s *Store) insertReturningID(ctx context.Context, tx DBTX, query string, args ...any) (uint, error) {
	if s.dialect == database.DialectPostgres {
		var id int64
		if err := tx.QueryRowContext(ctx, s.q(query+" RETURNING id"), args...).Scan(&id); err != nil {
			return 0, err
		}
		return uint(id), nil
	}
	res, err := tx.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("读取自增主键失败: %w", err)
	}
	return uint(id), nil
}

// withTx 开启事务执行 fn，成功提交，出错或 panic 时回滚
func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("提交事务失败: %w", cerr)
		}
	}()

	err = fn(ctx, tx)
	return err
}

// inClause 返回 "(?, ?, ?)" 以及展开后的参数
func inClause[T any](values []T) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ") + ")", args
}
