package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/local/docverify/internal/config"
)

// Janitor removes run artifact directories past the retention window and
// stamps file_deleted_at on their rows. Row metadata is kept forever.
type Janitor struct {
	pool     *pgxpool.Pool
	workDir  string
	days     int
	interval time.Duration
}

func NewJanitor(pool *pgxpool.Pool, workDir string, cfg config.RetentionConfig) *Janitor {
	return &Janitor{
		pool:     pool,
		workDir:  workDir,
		days:     cfg.Days,
		interval: cfg.SweepInterval,
	}
}

// Run sweeps periodically until ctx is canceled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := j.sweep(ctx); err != nil {
				log.Error().Err(err).Msg("retention sweep failed")
			} else if n > 0 {
				log.Info().Int("runs", n).Msg("retention sweep removed aged artifacts")
			}
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -j.days)
	rows, err := j.pool.Query(ctx,
		`SELECT run_id FROM verification_runs
		 WHERE created_at < $1 AND file_deleted_at IS NULL
		 LIMIT 500`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("select aged runs: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate aged runs: %w", err)
	}

	removed := 0
	for _, id := range ids {
		dir := filepath.Join(j.workDir, id)
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("run_id", id).Str("dir", dir).Msg("failed to remove run artifacts")
			continue
		}
		if _, err := j.pool.Exec(ctx,
			`UPDATE verification_runs SET file_deleted_at = now() WHERE run_id = $1`, id); err != nil {
			log.Warn().Err(err).Str("run_id", id).Msg("failed to stamp file_deleted_at")
			continue
		}
		removed++
	}
	return removed, nil
}
