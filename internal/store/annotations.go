package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zjrosen/gitfold/internal/vcs"
)

// AnnotationRepository reads and writes per-commit enrichment results.
type AnnotationRepository struct {
	db *sql.DB
}

func newAnnotationRepository(db *sql.DB) *AnnotationRepository {
	return &AnnotationRepository{db: db}
}

// Title returns the stored pull request title for id.
func (r *AnnotationRepository) Title(ctx context.Context, id vcs.CommitID) (string, bool, error) {
	var title string
	err := r.db.QueryRowContext(ctx,
		`SELECT title FROM titles WHERE commit_id = ?`, string(id)).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load title %s: %w", id.Short(), err)
	}
	return title, true, nil
}

// SaveTitle stores or replaces the title for id.
func (r *AnnotationRepository) SaveTitle(ctx context.Context, id vcs.CommitID, title string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO titles (commit_id, title, resolved_at) VALUES (?, ?, ?)
		ON CONFLICT(commit_id) DO UPDATE SET title = excluded.title, resolved_at = excluded.resolved_at`,
		string(id), title, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save title %s: %w", id.Short(), err)
	}
	return nil
}

// Modules returns the module names stored for id under the definition set
// identified by fingerprint. A stored empty list is reported as found.
func (r *AnnotationRepository) Modules(ctx context.Context, fingerprint string, id vcs.CommitID) ([]string, bool, error) {
	var joined string
	err := r.db.QueryRowContext(ctx,
		`SELECT modules FROM commit_modules WHERE fingerprint = ? AND commit_id = ?`,
		fingerprint, string(id)).Scan(&joined)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load modules %s: %w", id.Short(), err)
	}
	if joined == "" {
		return []string{}, true, nil
	}
	return strings.Split(joined, ","), true, nil
}

// SaveModules stores the module names for id.
func (r *AnnotationRepository) SaveModules(ctx context.Context, fingerprint string, id vcs.CommitID, names []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO module_sets (fingerprint, created_at) VALUES (?, ?)`,
		fingerprint, time.Now().Unix()); err != nil {
		return fmt.Errorf("save module set: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO commit_modules (fingerprint, commit_id, modules) VALUES (?, ?, ?)
		ON CONFLICT(fingerprint, commit_id) DO UPDATE SET modules = excluded.modules`,
		fingerprint, string(id), strings.Join(names, ",")); err != nil {
		return fmt.Errorf("save modules %s: %w", id.Short(), err)
	}
	return tx.Commit()
}

// PruneModuleSets deletes classifications made under any definition set
// other than keep, and returns how many sets were removed.
func (r *AnnotationRepository) PruneModuleSets(ctx context.Context, keep string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM module_sets WHERE fingerprint != ?`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune module sets: %w", err)
	}
	return res.RowsAffected()
}

// CountTitles returns the number of stored titles.
func (r *AnnotationRepository) CountTitles(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM titles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count titles: %w", err)
	}
	return n, nil
}
