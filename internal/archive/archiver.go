// Package archive moves old submission records out of the main database into
// monthly SQLite archive files.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/orrn/remoteprint/internal/config"
)

const (
	filePrefix = "archive_"
	fileSuffix = ".db"
	timeLayout = "2006-01-02 15:04:05"
)

var ErrArchiveNotFound = errors.New("archive not found")

const archiveSchema = `
	CREATE TABLE IF NOT EXISTS archive.submissions (
		id INTEGER PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		parent_reference TEXT NOT NULL DEFAULT '',
		printer_id INTEGER NOT NULL,
		content_type TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		qty INTEGER NOT NULL,
		copies INTEGER NOT NULL DEFAULT 0,
		options_json TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		response_status INTEGER NOT NULL DEFAULT 0,
		response_body TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		submitted_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)
`

const archiveColumns = `id, reference, parent_reference, printer_id, content_type, source, title, qty, copies,
	options_json, status, response_status, response_body, error_message, submitted_by, created_at`

type ArchiveFile struct {
	Filename        string    `json:"filename"`
	Size            int64     `json:"size"`
	CreatedAt       time.Time `json:"created_at"`
	SubmissionCount int       `json:"submission_count"`
	Month           string    `json:"month"`
}

type Archiver struct {
	db            *sql.DB
	archivePath   string
	retentionDays int
	interval      time.Duration
	now           func() time.Time
	logger        *zap.Logger
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	mu            sync.Mutex
}

type Option func(*Archiver)

func WithLogger(logger *zap.Logger) Option {
	return func(a *Archiver) {
		a.logger = logger
	}
}

// WithClock replaces time.Now when computing the cutoff and file names.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) {
		a.now = now
	}
}

func NewArchiver(database *sql.DB, cfg config.ArchiveConfig, opts ...Option) (*Archiver, error) {
	if cfg.Path == "" {
		cfg.Path = "./data/archives"
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	a := &Archiver{
		db:            database,
		archivePath:   cfg.Path,
		retentionDays: cfg.RetentionDays,
		interval:      cfg.Interval,
		now:           time.Now,
		logger:        zap.NewNop(),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Archiver) Start() {
	a.wg.Add(1)
	go a.runPeriodic()
}

func (a *Archiver) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
	a.wg.Wait()
}

func (a *Archiver) runPeriodic() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			if _, err := a.RunArchive(context.Background()); err != nil {
				a.logger.Error("submission archive run failed", zap.Error(err))
			}
		}
	}
}

// RunArchive moves submissions older than the retention window into this
// month's archive file and returns how many were moved.
func (a *Archiver) RunArchive(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	cutoff := now.AddDate(0, 0, -a.retentionDays).UTC().Format(timeLayout)
	filename := fmt.Sprintf("%s%s%s", filePrefix, now.Format("2006_01"), fileSuffix)

	// ATTACH is per connection, so everything runs on one.
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS archive", filepath.Join(a.archivePath, filename)); err != nil {
		return 0, fmt.Errorf("failed to attach archive database: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), "DETACH DATABASE archive"); err != nil {
			a.logger.Warn("failed to detach archive database", zap.Error(err))
		}
	}()

	if _, err := conn.ExecContext(ctx, archiveSchema); err != nil {
		return 0, fmt.Errorf("failed to create archive schema: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO archive.submissions ("+archiveColumns+") SELECT "+archiveColumns+
			" FROM main.submissions WHERE created_at < ?", cutoff); err != nil {
		return 0, fmt.Errorf("failed to copy submissions to archive: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM main.submissions WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete archived submissions: %w", err)
	}
	moved, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count archived submissions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit archive transaction: %w", err)
	}

	if moved > 0 {
		a.logger.Info("archived submissions",
			zap.Int64("count", moved),
			zap.String("archive", filename),
			zap.String("cutoff", cutoff))
	}
	return int(moved), nil
}

func (a *Archiver) ListArchives() ([]*ArchiveFile, error) {
	entries, err := os.ReadDir(a.archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	archives := []*ArchiveFile{}
	for _, entry := range entries {
		if entry.IsDir() || !isArchiveName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		archives = append(archives, &ArchiveFile{
			Filename:  entry.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
			Month:     monthOf(entry.Name()),
		})
	}
	return archives, nil
}

// GetArchiveInfo describes one archive file, including its row count.
func (a *Archiver) GetArchiveInfo(ctx context.Context, filename string) (*ArchiveFile, error) {
	path, err := a.resolve(filename)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	count, err := countSubmissions(ctx, path)
	if err != nil {
		return nil, err
	}

	return &ArchiveFile{
		Filename:        filename,
		Size:            info.Size(),
		CreatedAt:       info.ModTime(),
		SubmissionCount: count,
		Month:           monthOf(filename),
	}, nil
}

func (a *Archiver) DeleteArchive(filename string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	path, err := a.resolve(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return nil
}

// FilePath returns the on-disk path of an existing archive file.
func (a *Archiver) FilePath(filename string) (string, error) {
	return a.resolve(filename)
}

func (a *Archiver) RetentionDays() int {
	return a.retentionDays
}

func (a *Archiver) resolve(filename string) (string, error) {
	if filepath.Base(filename) != filename || !isArchiveName(filename) {
		return "", fmt.Errorf("%w: %s", ErrArchiveNotFound, filename)
	}
	path := filepath.Join(a.archivePath, filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrArchiveNotFound, filename)
		}
		return "", fmt.Errorf("failed to stat archive: %w", err)
	}
	return path, nil
}

func countSubmissions(ctx context.Context, path string) (int, error) {
	archiveDB, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return 0, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveDB.Close()

	var count int
	if err := archiveDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM submissions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count archived submissions: %w", err)
	}
	return count, nil
}

func isArchiveName(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}

func monthOf(name string) string {
	month := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	return strings.Replace(month, "_", "-", 1)
}
