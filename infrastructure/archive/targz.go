// Package archive unpacks downloaded model archives.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for archive entries that would land outside the
// destination directory.
var ErrUnsafePath = errors.New("unsafe path in archive")

// Result summarises an extraction.
type Result struct {
	Files int
	Dirs  int
	Bytes int64
}

// ExtractTarGz unpacks the gzip compressed tarball at archivePath into
// destDir. Entries are written to a sibling staging directory that is
// renamed to destDir only after every entry succeeded, so destDir exists
// only once extraction is complete.
func ExtractTarGz(ctx context.Context, archivePath, destDir string) (Result, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return Result{}, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close() //nolint:errcheck

	parent := filepath.Dir(filepath.Clean(destDir))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return Result{}, fmt.Errorf("create directory: %w", err)
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(destDir)+".extract-*")
	if err != nil {
		return Result{}, fmt.Errorf("create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	res, err := extract(ctx, f, staging)
	if err != nil {
		return Result{}, err
	}

	if err := os.Rename(staging, destDir); err != nil {
		return Result{}, fmt.Errorf("move extracted files into %s: %w", destDir, err)
	}
	return res, nil
}

func extract(ctx context.Context, r io.Reader, dir string) (Result, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return Result{}, fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close() //nolint:errcheck

	// Every write goes through root, which refuses to follow a symlink
	// (or a chain of them) out of the staging directory.
	root, err := os.OpenRoot(dir)
	if err != nil {
		return Result{}, fmt.Errorf("open staging directory: %w", err)
	}
	defer root.Close() //nolint:errcheck

	var res Result
	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("tar read: %w", err)
		}

		name, err := localName(header.Name)
		if err != nil {
			return Result{}, err
		}
		if name == "." {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(name, dirMode(header)); err != nil {
				return Result{}, fmt.Errorf("create %s: %w", header.Name, err)
			}
			res.Dirs++
		case tar.TypeReg:
			n, err := writeFile(root, name, tr, fileMode(header))
			if err != nil {
				return Result{}, err
			}
			res.Files++
			res.Bytes += n
		case tar.TypeSymlink:
			if err := writeSymlink(root, name, header.Linkname); err != nil {
				return Result{}, err
			}
		default:
			// Hard links, devices and fifos have no place in a model archive.
		}
	}
	return res, nil
}

// localName cleans an entry name into a slash-free relative path, rejecting
// absolute paths and any traversal above the archive root.
func localName(name string) (string, error) {
	if name == "" {
		return ".", nil
	}
	if strings.HasPrefix(name, "/") || !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return filepath.Clean(filepath.FromSlash(name)), nil
}

// within reports whether the relative path rel stays inside its root.
func within(rel string) bool {
	rel = filepath.Clean(rel)
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func writeSymlink(root *os.Root, name, linkname string) error {
	if filepath.IsAbs(linkname) || strings.HasPrefix(linkname, "/") ||
		!within(filepath.Join(filepath.Dir(name), filepath.FromSlash(linkname))) {
		return fmt.Errorf("%w: symlink %s -> %s", ErrUnsafePath, name, linkname)
	}
	if err := root.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", name, err)
	}
	if err := root.Symlink(linkname, name); err != nil {
		return fmt.Errorf("create symlink %s: %w", name, err)
	}
	return nil
}

func writeFile(root *os.Root, name string, src io.Reader, mode os.FileMode) (int64, error) {
	if err := root.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return 0, fmt.Errorf("create directory for %s: %w", name, err)
	}
	out, err := root.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", name, err)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("write %s: %w", name, err)
	}
	return n, out.Close()
}

func fileMode(h *tar.Header) os.FileMode {
	mode := os.FileMode(h.Mode).Perm()
	if mode == 0 {
		return 0o644
	}
	// Always keep files readable and writable by the owner.
	return mode | 0o600
}

func dirMode(h *tar.Header) os.FileMode {
	return os.FileMode(h.Mode).Perm() | 0o700
}
