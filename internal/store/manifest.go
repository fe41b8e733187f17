// Package store persists the extraction manifest: which files were traced,
// under which server version and mode, and where the artifacts landed. The
// manifest lets repeat runs skip files whose content and settings are
// unchanged.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersion = "1"

// FileRecord is one manifest row describing the last successful trace of a
// source file. Times are unix nanoseconds so mtime comparison is exact.
type FileRecord struct {
	Path          string
	FileHash      string
	MtimeUnixNS   int64
	Mode          string
	ServerVersion string
	ArtifactPath  string
	SegmentCount  int
	RunID         string
	ExtractedAt   time.Time
}

// RunRecord summarizes one extraction run.
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Traced     int
	Skipped    int
	Failed     int
}

// Manifest wraps the sqlite database holding file and run records.
type Manifest struct {
	db *sql.DB
}

// Open opens (or creates) the manifest database at path and ensures the
// schema exists.
func Open(path string) (*Manifest, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", path, err)
	}
	m := &Manifest{db: db}
	if err := m.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manifest) createSchema() error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	tables := []struct {
		name string
		ddl  string
	}{
		{"files", `
			CREATE TABLE IF NOT EXISTS files (
				path TEXT PRIMARY KEY,
				file_hash TEXT NOT NULL,
				mtime_unix_ns INTEGER NOT NULL,
				mode TEXT NOT NULL,
				server_version TEXT NOT NULL,
				artifact_path TEXT NOT NULL,
				segment_count INTEGER NOT NULL,
				run_id TEXT NOT NULL,
				extracted_at TEXT NOT NULL
			)`},
		{"runs", `
			CREATE TABLE IF NOT EXISTS runs (
				run_id TEXT PRIMARY KEY,
				started_at TEXT NOT NULL,
				finished_at TEXT NOT NULL,
				traced INTEGER NOT NULL,
				skipped INTEGER NOT NULL,
				failed INTEGER NOT NULL
			)`},
		{"manifest_metadata", `
			CREATE TABLE IF NOT EXISTS manifest_metadata (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`},
	}
	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("create %s table: %w", table.name, err)
		}
	}
	_, err = tx.Exec(
		`INSERT OR IGNORE INTO manifest_metadata (key, value) VALUES ('schema_version', ?)`,
		schemaVersion)
	if err != nil {
		return fmt.Errorf("bootstrap manifest_metadata: %w", err)
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (m *Manifest) Close() error {
	return m.db.Close()
}

// GetFile returns the record for a root-relative path, or nil if the file
// has never been traced.
func (m *Manifest) GetFile(ctx context.Context, relPath string) (*FileRecord, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT path, file_hash, mtime_unix_ns, mode, server_version,
		       artifact_path, segment_count, run_id, extracted_at
		FROM files WHERE path = ?`, relPath)

	var rec FileRecord
	var extractedAt string
	err := row.Scan(&rec.Path, &rec.FileHash, &rec.MtimeUnixNS, &rec.Mode,
		&rec.ServerVersion, &rec.ArtifactPath, &rec.SegmentCount, &rec.RunID,
		&extractedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query file %s: %w", relPath, err)
	}
	rec.ExtractedAt, _ = time.Parse(time.RFC3339Nano, extractedAt)
	return &rec, nil
}

// PutFile upserts a file record after a successful trace.
func (m *Manifest) PutFile(ctx context.Context, rec FileRecord) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO files (path, file_hash, mtime_unix_ns, mode, server_version,
			artifact_path, segment_count, run_id, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			file_hash = excluded.file_hash,
			mtime_unix_ns = excluded.mtime_unix_ns,
			mode = excluded.mode,
			server_version = excluded.server_version,
			artifact_path = excluded.artifact_path,
			segment_count = excluded.segment_count,
			run_id = excluded.run_id,
			extracted_at = excluded.extracted_at`,
		rec.Path, rec.FileHash, rec.MtimeUnixNS, rec.Mode, rec.ServerVersion,
		rec.ArtifactPath, rec.SegmentCount, rec.RunID,
		rec.ExtractedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", rec.Path, err)
	}
	return nil
}

// DeleteFile removes a file's record, for sources deleted from disk.
func (m *Manifest) DeleteFile(ctx context.Context, relPath string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, relPath)
	if err != nil {
		return fmt.Errorf("delete file %s: %w", relPath, err)
	}
	return nil
}

// AllFiles returns every recorded path, for deletion detection against the
// discovered set.
func (m *Manifest) AllFiles(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT path FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// PutRun records a completed run's summary.
func (m *Manifest) PutRun(ctx context.Context, rec RunRecord) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, finished_at, traced, skipped, failed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
		rec.Traced, rec.Skipped, rec.Failed)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.RunID, err)
	}
	return nil
}

// Unchanged reports whether absPath can be skipped given the manifest state.
//
// Fast path: if the disk mtime matches the recorded mtime and the mode
// matches, the file is unchanged and no hash is computed. Otherwise the
// content hash decides; a hash match with a drifted mtime is still
// unchanged. A non-empty serverVersion additionally pins the recorded
// version; empty means any. The returned hash is empty when the fast path
// was taken.
func (m *Manifest) Unchanged(ctx context.Context, relPath, absPath, mode, serverVersion string) (bool, string, error) {
	rec, err := m.GetFile(ctx, relPath)
	if err != nil {
		return false, "", err
	}
	if rec == nil {
		return false, "", nil
	}
	if rec.Mode != mode {
		return false, "", nil
	}
	if serverVersion != "" && rec.ServerVersion != serverVersion {
		return false, "", nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return false, "", fmt.Errorf("stat %s: %w", relPath, err)
	}
	if info.ModTime().UnixNano() == rec.MtimeUnixNS {
		return true, "", nil
	}

	hash, err := HashFile(absPath)
	if err != nil {
		return false, "", err
	}
	return hash == rec.FileHash, hash, nil
}

// HashFile returns the hex sha256 of a file's content.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
