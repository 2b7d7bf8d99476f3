package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// ensure we implement io.WriteCloser
var _ io.WriteCloser = (*LogRotator)(nil)

// DefaultMaxSize is the rotation threshold when MaxSize is zero.
const DefaultMaxSize = 5 * 1024 * 1024

const backupTimeFormat = "2006-01-02T15-04-05.000"

// LogRotator writes to a log file and rotates it when it reaches MaxSize bytes.
// Rotated files are named <name>-<timestamp><ext>, optionally gzipped, and
// pruned by count and age right after each rotation.
type LogRotator struct {
	Filename   string
	MaxSize    int64
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	size int64
	file *os.File
	mu   sync.Mutex
}

// Write appends p to the log file, rotating first if p does not fit.
func (l *LogRotator) Write(p []byte) (n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	writeLen := int64(len(p))
	if writeLen > l.max() {
		return 0, fmt.Errorf("write length %d exceeds max file size %d", writeLen, l.max())
	}

	if l.file == nil {
		if err = l.openExistingOrNew(writeLen); err != nil {
			return 0, err
		}
	}

	if l.size+writeLen > l.max() {
		if err := l.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = l.file.Write(p)
	l.size += int64(n)
	return n, err
}

// Rotate forces a rotation of the current file.
func (l *LogRotator) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotate()
}

// Close closes the file.
func (l *LogRotator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.close()
}

func (l *LogRotator) close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *LogRotator) openExistingOrNew(writeLen int64) error {
	info, err := os.Stat(l.Filename)
	if os.IsNotExist(err) {
		return l.openNew()
	}
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	if info.Size()+writeLen > l.max() {
		return l.rotate()
	}

	file, err := os.OpenFile(l.Filename, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return l.openNew()
	}

	l.file = file
	l.size = info.Size()
	return nil
}

func (l *LogRotator) openNew() error {
	if err := os.MkdirAll(filepath.Dir(l.Filename), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(l.Filename); err == nil {
		mode = info.Mode()
	}

	f, err := os.OpenFile(l.Filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	l.file = f
	l.size = 0
	return nil
}

// rotate closes the current file, renames it to a backup and opens a new one.
func (l *LogRotator) rotate() error {
	if err := l.close(); err != nil {
		return err
	}

	if _, err := os.Stat(l.Filename); err == nil {
		backup := l.backupName(time.Now())
		if err := os.Rename(l.Filename, backup); err != nil {
			return fmt.Errorf("failed to rename log file: %w", err)
		}
		if l.Compress {
			if err := compressLogFile(backup); err == nil {
				os.Remove(backup)
			}
		}
		l.cleanup()
	}

	return l.openNew()
}

func (l *LogRotator) backupName(t time.Time) string {
	prefix, ext := l.nameParts()
	return filepath.Join(filepath.Dir(l.Filename), fmt.Sprintf("%s-%s%s", prefix, t.Format(backupTimeFormat), ext))
}

func (l *LogRotator) nameParts() (prefix, ext string) {
	base := filepath.Base(l.Filename)
	ext = filepath.Ext(base)
	return base[:len(base)-len(ext)], ext
}

func (l *LogRotator) max() int64 {
	if l.MaxSize <= 0 {
		return DefaultMaxSize
	}
	return l.MaxSize
}

func (l *LogRotator) cleanup() {
	if l.MaxBackups == 0 && l.MaxAgeDays == 0 {
		return
	}

	files, err := l.backups()
	if err != nil {
		return
	}

	if l.MaxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -l.MaxAgeDays)
		var remaining []backupFile
		for _, f := range files {
			if f.timestamp.Before(cutoff) {
				os.Remove(f.path)
			} else {
				remaining = append(remaining, f)
			}
		}
		files = remaining
	}

	// files are oldest first; keep the newest MaxBackups.
	if l.MaxBackups > 0 && len(files) > l.MaxBackups {
		for _, f := range files[:len(files)-l.MaxBackups] {
			os.Remove(f.path)
		}
	}
}

type backupFile struct {
	timestamp time.Time
	path      string
}

// backups lists rotated files, oldest first. The active file never matches
// because backups carry a "-" after the prefix.
func (l *LogRotator) backups() ([]backupFile, error) {
	dir := filepath.Dir(l.Filename)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	prefix, ext := l.nameParts()
	var files []backupFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix+"-") {
			continue
		}

		ts := strings.TrimSuffix(name[len(prefix)+1:], ".gz")
		if !strings.HasSuffix(ts, ext) {
			continue
		}
		ts = strings.TrimSuffix(ts, ext)

		t, err := time.ParseInLocation(backupTimeFormat, ts, time.Local)
		if err != nil {
			continue
		}
		files = append(files, backupFile{timestamp: t, path: filepath.Join(dir, name)})
	}

	slices.SortFunc(files, func(a, b backupFile) int {
		return a.timestamp.Compare(b.timestamp)
	})
	return files, nil
}

func compressLogFile(src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	gzf, err := os.Create(src + ".gz")
	if err != nil {
		return err
	}
	defer gzf.Close()

	zw := gzip.NewWriter(gzf)
	if _, err := io.Copy(zw, f); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
