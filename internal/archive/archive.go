// Package archive packages source files for upload and unpacks the archives
// returned by the service.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"jscrambler-client/internal/api"
)

// NoFilesFoundError is returned by Zip when none of the requested paths is a regular file.
type NoFilesFoundError struct {
	Patterns []string
}

func (e *NoFilesFoundError) Error() string {
	return `no source files found. If you intend to send a whole directory sufix your path with "**" (e.g. ./my-directory/**)`
}

// MaxDecompressSize bounds a single extracted entry (1GB).
const MaxDecompressSize = 1 << 30

// Zip writes files into a zip archive at dest and returns how many files were added.
//
// A single path ending in ".zip" is treated as an already packaged project and
// copied verbatim. Otherwise every path naming a regular file is added; directories
// are not walked, callers expand them beforehand. A file that cannot be read
// yields *api.FileReadError.
func Zip(files []string, dest string) (int, error) {
	if len(files) == 1 && strings.HasSuffix(files[0], ".zip") {
		if err := copyFile(files[0], dest); err != nil {
			return 0, err
		}
		return 1, nil
	}

	zipFile, err := os.Create(dest)
	if err != nil {
		return 0, err
	}

	w := zip.NewWriter(zipFile)
	added := 0
	var addErr error
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := addFile(w, file, info); err != nil {
			addErr = fmt.Errorf("adding %s: %w", file, err)
			break
		}
		added++
	}

	// Close zip writer first to flush data
	if closeErr := w.Close(); closeErr != nil && addErr == nil {
		addErr = fmt.Errorf("closing zip writer: %w", closeErr)
	}
	if closeErr := zipFile.Close(); closeErr != nil && addErr == nil {
		addErr = fmt.Errorf("closing zip file: %w", closeErr)
	}
	if addErr != nil {
		return 0, addErr
	}

	if added == 0 {
		return 0, &NoFilesFoundError{Patterns: files}
	}
	return added, nil
}

// EntryName maps a local path to its name inside the archive: cleaned, with a
// leading "../" resolved to an absolute path, then made relative to the root.
func EntryName(path string) string {
	p := filepath.Clean(path)
	if strings.HasPrefix(filepath.ToSlash(p), "../") {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
	}
	p = filepath.ToSlash(p)
	if vol := filepath.VolumeName(p); vol != "" {
		p = p[len(vol):]
	}
	return strings.TrimLeft(p, "/")
}

func addFile(w *zip.Writer, path string, info os.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = EntryName(path)
	header.Method = zip.Deflate

	writer, err := w.CreateHeader(header)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return &api.FileReadError{Path: path, Err: err}
	}
	defer func() { _ = file.Close() }()

	_, err = io.Copy(writer, file)
	return err
}

// Unzip stores data in tmp, extracts every entry into destDir and removes tmp.
func Unzip(data []byte, destDir string, tmp TempArchive) error {
	if err := os.WriteFile(tmp.Path, data, 0o600); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}
	defer func() { _ = tmp.Remove() }()

	return Extract(tmp.Path, destDir)
}

// Extract extracts a zip archive to destDir, creating it if needed.
func Extract(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating destination %s: %w", destDir, err)
	}

	absDestDir, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("resolving destination path: %w", err)
	}
	absDestDir = filepath.Clean(absDestDir)

	for _, f := range r.File {
		if f.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("symlinks not supported in archives: %s", f.Name)
		}

		fpath := filepath.Join(absDestDir, filepath.FromSlash(f.Name))
		if !isWithinDir(absDestDir, fpath) {
			return fmt.Errorf("invalid file path (path traversal detected): %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", fpath, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
			return fmt.Errorf("creating parent directory for %s: %w", fpath, err)
		}
		if err := extractFile(f, fpath); err != nil {
			return fmt.Errorf("extracting %s: %w", f.Name, err)
		}
	}

	return nil
}

func extractFile(f *zip.File, destPath string) error {
	declaredSize := f.UncompressedSize64
	if declaredSize > MaxDecompressSize {
		return fmt.Errorf("file too large: %d bytes exceeds limit of %d bytes", declaredSize, MaxDecompressSize)
	}

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	outFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer func() { _ = outFile.Close() }()

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	// One byte past the declared size detects archives that lie about it.
	written, err := io.Copy(outFile, io.LimitReader(rc, int64(declaredSize)+1))
	if err != nil {
		return err
	}
	if written > int64(declaredSize) {
		return fmt.Errorf("decompressed size exceeds declared size")
	}
	return nil
}

func isWithinDir(absBaseDir, target string) bool {
	absTarget := filepath.Clean(target)
	return strings.HasPrefix(absTarget, absBaseDir+string(filepath.Separator)) || absTarget == absBaseDir
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &api.FileReadError{Path: src, Err: err}
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return &api.FileReadError{Path: src, Err: err}
	}
	return out.Close()
}
