package services

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/richardnoragon/budgetauth/internal/database"
	"github.com/rs/zerolog/log"
)

const backupPrefix = "budgetinator_"

// BackupServiceProvider defines the interface for database backups.
type BackupServiceProvider interface {
	BackupNow(destDir string) (string, error)
	PruneOld(destDir string, keep int) (int, error)
}

// BackupService writes timestamped copies of the live database.
type BackupService struct {
	db         *sql.DB
	defaultDir string
}

// NewBackupService creates a new BackupService.
func NewBackupService(db *sql.DB, defaultDir string) *BackupService {
	return &BackupService{db: db, defaultDir: defaultDir}
}

// BackupNow copies the database into destDir (the configured backup
// directory when destDir is empty) and returns the path written.
func (s *BackupService) BackupNow(destDir string) (string, error) {
	if destDir == "" {
		destDir = s.defaultDir
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("could not create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s%s.db", backupPrefix, time.Now().Format("20060102150405"))
	path := filepath.Join(destDir, name)
	if err := database.Backup(s.db, path); err != nil {
		return "", err
	}
	log.Info().Str("path", path).Msg("Database backup written")
	return path, nil
}

// PruneOld deletes the oldest backups in destDir beyond keep and returns how
// many were removed. The timestamped names sort chronologically.
func (s *BackupService) PruneOld(destDir string, keep int) (int, error) {
	if destDir == "" {
		destDir = s.defaultDir
	}
	if keep < 1 {
		keep = 1
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), backupPrefix) {
			names = append(names, e.Name())
		}
	}
	if len(names) <= keep {
		return 0, nil
	}
	sort.Strings(names)

	removed := 0
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(destDir, name)); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("Could not remove old backup")
			continue
		}
		removed++
	}
	return removed, nil
}
