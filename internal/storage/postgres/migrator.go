package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

const (
	revisionsGlob = "sql/migrations/*.sql"

	// Ключ pg_advisory_lock, защищающий конкурентный запуск миграций.
	revisionLockKey = int64(7092604411)
)

var revisionFileRE = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// revision — одна версия схемы: пара up/down SQL с общим номером и именем.
type revision struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

func (r revision) label() string {
	return fmt.Sprintf("%d_%s", r.Version, r.Name)
}

// MigrateUp применяет недостающие up-ревизии по порядку.
// steps=0 — применить все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.runRevisions(ctx, steps, false)
}

// MigrateDown откатывает последние применённые ревизии.
// steps<=0 трактуется как один шаг.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.runRevisions(ctx, steps, true)
}

// MigrationStatus возвращает максимальную применённую версию и их количество.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, errors.New("postgres store is not initialized")
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := ensureRevisionTable(queryCtx, s.db); err != nil {
		return 0, 0, err
	}

	var (
		version int64
		count   int
	)
	row := s.db.QueryRowContext(queryCtx,
		`SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`)
	if err := row.Scan(&version, &count); err != nil {
		return 0, 0, fmt.Errorf("read schema_migrations: %w", err)
	}
	return version, count, nil
}

func (s *Store) runRevisions(ctx context.Context, steps int, rollback bool) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	revisions, err := loadRevisions(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection for migrations: %w", err)
	}
	defer conn.Close()

	unlock, err := acquireRevisionLock(ctx, conn)
	if err != nil {
		return err
	}
	defer unlock()

	if err := ensureRevisionTable(ctx, conn); err != nil {
		return err
	}

	if rollback {
		return rollbackRevisions(ctx, conn, revisions, steps)
	}
	return applyRevisions(ctx, conn, revisions, steps)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func ensureRevisionTable(ctx context.Context, db execer) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}
	return nil
}

func acquireRevisionLock(ctx context.Context, conn *sql.Conn) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, revisionLockKey); err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, revisionLockKey)
	}, nil
}

func applyRevisions(ctx context.Context, conn *sql.Conn, revisions []revision, steps int) error {
	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	done := 0
	for _, rev := range revisions {
		if applied[rev.Version] {
			continue
		}
		err := inRevisionTx(ctx, conn, rev, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, rev.Up); err != nil {
				return fmt.Errorf("apply %s: %w", rev.label(), err)
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
				rev.Version, rev.Name)
			if err != nil {
				return fmt.Errorf("record %s: %w", rev.label(), err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		done++
		if steps > 0 && done >= steps {
			return nil
		}
	}
	return nil
}

func rollbackRevisions(ctx context.Context, conn *sql.Conn, revisions []revision, steps int) error {
	byVersion := make(map[int64]revision, len(revisions))
	for _, rev := range revisions {
		byVersion[rev.Version] = rev
	}

	rows, err := conn.QueryContext(ctx,
		`SELECT version FROM schema_migrations ORDER BY version DESC LIMIT $1`, steps)
	if err != nil {
		return fmt.Errorf("list applied revisions: %w", err)
	}
	var targets []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("scan applied revision: %w", err)
		}
		targets = append(targets, version)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list applied revisions: %w", err)
	}

	for _, version := range targets {
		rev, ok := byVersion[version]
		if !ok {
			return fmt.Errorf("applied revision %d has no local down file", version)
		}
		err := inRevisionTx(ctx, conn, rev, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, rev.Down); err != nil {
				return fmt.Errorf("rollback %s: %w", rev.label(), err)
			}
			_, err := tx.ExecContext(ctx,
				`DELETE FROM schema_migrations WHERE version = $1`, rev.Version)
			if err != nil {
				return fmt.Errorf("unrecord %s: %w", rev.label(), err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func inRevisionTx(ctx context.Context, conn *sql.Conn, rev revision, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", rev.label(), err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", rev.label(), err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied revisions: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied revision: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list applied revisions: %w", err)
	}
	return applied, nil
}

// loadRevisions читает встроенные файлы миграций и собирает их в
// отсортированный список ревизий. Каждая версия обязана иметь ровно
// один up- и один down-файл с непустым телом.
func loadRevisions(fsys fs.FS) ([]revision, error) {
	files, err := fs.Glob(fsys, revisionsGlob)
	if err != nil {
		return nil, fmt.Errorf("glob migration files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files embedded")
	}

	byVersion := make(map[int64]*revision)
	for _, file := range files {
		base := path.Base(file)
		m := revisionFileRE.FindStringSubmatch(base)
		if m == nil {
			return nil, fmt.Errorf("migration file %s does not match NNNN_name.(up|down).sql", base)
		}

		version, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration file %s: bad version: %w", base, err)
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", base, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file %s is empty", base)
		}

		rev, ok := byVersion[version]
		if !ok {
			rev = &revision{Version: version, Name: m[2]}
			byVersion[version] = rev
		} else if rev.Name != m[2] {
			return nil, fmt.Errorf("version %d has conflicting names %q and %q", version, rev.Name, m[2])
		}

		if m[3] == "up" {
			if rev.Up != "" {
				return nil, fmt.Errorf("duplicate up file for version %d", version)
			}
			rev.Up = body
		} else {
			if rev.Down != "" {
				return nil, fmt.Errorf("duplicate down file for version %d", version)
			}
			rev.Down = body
		}
	}

	revisions := make([]revision, 0, len(byVersion))
	for _, rev := range byVersion {
		if rev.Up == "" || rev.Down == "" {
			return nil, fmt.Errorf("revision %s must have both up and down files", rev.label())
		}
		revisions = append(revisions, *rev)
	}
	sort.Slice(revisions, func(i, j int) bool { return revisions[i].Version < revisions[j].Version })

	return revisions, nil
}
