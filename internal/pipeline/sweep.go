package pipeline

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// SweepWorkDir removes run directories older than maxAge. Called at startup
// so directories orphaned by a crashed process do not accumulate.
func SweepWorkDir(workDir string, maxAge time.Duration) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) >= maxAge {
			if err := os.RemoveAll(filepath.Join(workDir, e.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		log.Info().Int("dirs", removed).Str("work_dir", workDir).Msg("swept stale run directories")
	}
}
