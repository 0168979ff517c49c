package upload

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Stats tracks upload progress.
type Stats struct {
	FilesTotal    int
	FilesUploaded int
	FilesSkipped  int
	FilesErrored  int

	RecordsReceived int
	RecordsInserted int
	RecordsSkipped  int
}

// Uploader walks a directory of Alpha Progression CSV exports and sends
// each new or changed file to the server.
type Uploader struct {
	client *Client
	state  *StateDB
	dir    string
	dryRun bool
	log    *slog.Logger
	stats  Stats
}

// New creates a new Uploader. client may be nil in dry-run mode.
func New(client *Client, state *StateDB, dir string, dryRun bool, log *slog.Logger) *Uploader {
	return &Uploader{client: client, state: state, dir: dir, dryRun: dryRun, log: log}
}

// Run uploads every pending export. A failing file is logged and counted;
// the walk continues.
func (u *Uploader) Run(ctx context.Context) (*Stats, error) {
	files, err := FindExports(u.dir)
	if err != nil {
		return &u.stats, err
	}
	u.stats.FilesTotal = len(files)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return &u.stats, err
		}
		if err := u.uploadFile(ctx, path); err != nil {
			u.stats.FilesErrored++
			u.log.Error("upload failed", "file", path, "error", err)
		}
	}
	return &u.stats, nil
}

func (u *Uploader) uploadFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	hash := HashBytes(data)

	done, err := u.state.IsUploaded(ctx, hash)
	if err != nil {
		return err
	}
	if done {
		u.stats.FilesSkipped++
		u.log.Debug("already uploaded", "file", path)
		return nil
	}

	if u.dryRun {
		u.log.Info("would upload", "file", path, "bytes", len(data))
		return nil
	}

	result, err := u.client.SendExport(ctx, data)
	if err != nil {
		return err
	}
	u.stats.FilesUploaded++
	u.stats.RecordsReceived += result.RecordsReceived
	u.stats.RecordsInserted += result.RecordsInserted
	u.stats.RecordsSkipped += result.RecordsSkipped
	u.log.Info("uploaded", "file", path, "inserted", result.RecordsInserted, "skipped", result.RecordsSkipped)

	return u.state.MarkUploaded(ctx, hash, path, result.RecordsInserted)
}

// FindExports returns the CSV files under dir (or dir itself if it is a
// file), sorted by path.
func FindExports(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return []string{dir}, nil
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
