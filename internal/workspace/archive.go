package workspace

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	scanerrors "github.com/scan-io-git/scanio-hub/pkg/shared/errors"
)

// materializeArchive unpacks an uploaded archive into the workspace.
func (s *Store) materializeArchive(path, dir string) error {
	if path == "" {
		return scanerrors.NewValidationError("source.path", "must be set")
	}
	return extractArchive(path, dir)
}

func isArchive(path string) bool {
	switch {
	case strings.HasSuffix(path, ".zip"),
		strings.HasSuffix(path, ".tar.gz"),
		strings.HasSuffix(path, ".tgz"),
		strings.HasSuffix(path, ".tar"):
		return true
	}
	// Extension-less downloads: sniff the zip magic.
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return magic == [4]byte{'P', 'K', 0x03, 0x04}
}

func extractArchive(path, dir string) error {
	if strings.HasSuffix(path, ".tar.gz") || strings.HasSuffix(path, ".tgz") || strings.HasSuffix(path, ".tar") {
		return extractTar(path, dir)
	}
	return extractZip(path, dir)
}

// safeJoin resolves an archive member name against dir, rejecting names that
// would land outside it.
func safeJoin(dir, name string) (string, error) {
	target := filepath.Join(dir, name)
	if target != dir && !strings.HasPrefix(target, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("archive member %q escapes the extraction directory", name)
	}
	return target, nil
}

func extractZip(path, dir string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open archive %q: %w", path, err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := safeJoin(dir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := writeZipEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to read archive member %q: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm())
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

func extractTar(path, dir string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive %q: %w", path, err)
	}
	defer f.Close()

	var reader io.Reader = f
	if !strings.HasSuffix(path, ".tar") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to read archive %q: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive %q: %w", path, err)
		}

		target, err := safeJoin(dir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(dst, tr); err != nil {
				dst.Close()
				return err
			}
			dst.Close()
		default:
			// Symlinks and specials are dropped; scanners only need files.
		}
	}
}
