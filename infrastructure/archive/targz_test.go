package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name     string
	body     string
	mode     int64
	typeflag byte
	linkname string
}

func writeTarGz(t *testing.T, entries []entry) string {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		typ := e.typeflag
		if typ == 0 {
			typ = tar.TypeReg
		}
		mode := e.mode
		if mode == 0 {
			mode = 0o644
		}
		h := &tar.Header{Name: e.name, Mode: mode, Typeflag: typ, Linkname: e.linkname}
		if typ == tar.TypeReg {
			h.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(h))
		if typ == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "model.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestExtractTarGz_SavedModelLayout(t *testing.T) {
	archive := writeTarGz(t, []entry{
		{name: "variables/", typeflag: tar.TypeDir, mode: 0o755},
		{name: "saved_model.pb", body: "graph"},
		{name: "variables/variables.index", body: "index"},
		{name: "variables/variables.data-00000-of-00001", body: "weights"},
		{name: "assets/vocab.txt", body: "hello\nworld\n"},
	})
	dest := filepath.Join(t.TempDir(), "cmlm-en-base")

	res, err := ExtractTarGz(context.Background(), archive, dest)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Files)
	assert.Equal(t, 1, res.Dirs)
	assert.Equal(t, int64(len("graph")+len("index")+len("weights")+len("hello\nworld\n")), res.Bytes)

	data, err := os.ReadFile(filepath.Join(dest, "saved_model.pb"))
	require.NoError(t, err)
	assert.Equal(t, "graph", string(data))

	data, err = os.ReadFile(filepath.Join(dest, "assets", "vocab.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", string(data))
}

func TestExtractTarGz_PreservesExecutableBit(t *testing.T) {
	archive := writeTarGz(t, []entry{
		{name: "bin/run.sh", body: "#!/bin/sh\n", mode: 0o755},
	})
	dest := filepath.Join(t.TempDir(), "out")

	_, err := ExtractTarGz(context.Background(), archive, dest)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dest, "bin", "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestExtractTarGz_RejectsTraversal(t *testing.T) {
	tests := []struct {
		name  string
		entry entry
	}{
		{name: "parent directory", entry: entry{name: "../escape.txt", body: "x"}},
		{name: "nested parent", entry: entry{name: "a/../../escape.txt", body: "x"}},
		{name: "absolute", entry: entry{name: "/etc/escape.txt", body: "x"}},
		{name: "symlink outside", entry: entry{name: "link", typeflag: tar.TypeSymlink, linkname: "../../etc/passwd"}},
		{name: "absolute symlink", entry: entry{name: "link", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := writeTarGz(t, []entry{tt.entry})
			parent := t.TempDir()
			dest := filepath.Join(parent, "out")

			_, err := ExtractTarGz(context.Background(), archive, dest)
			require.ErrorIs(t, err, ErrUnsafePath)

			_, statErr := os.Stat(dest)
			assert.True(t, os.IsNotExist(statErr), "destination must not exist after a failed extraction")

			leftovers, err := os.ReadDir(parent)
			require.NoError(t, err)
			assert.Empty(t, leftovers, "staging directory must be removed")
		})
	}
}

func TestExtractTarGz_RejectsSymlinkChainEscape(t *testing.T) {
	// Each link resolves inside the root on its own, but "a" walks one
	// level above it once "b" has been created on disk.
	archive := writeTarGz(t, []entry{
		{name: "b", typeflag: tar.TypeSymlink, linkname: "."},
		{name: "a", typeflag: tar.TypeSymlink, linkname: "b/.."},
		{name: "a/escaped.txt", body: "outside"},
	})
	work := t.TempDir()
	dest := filepath.Join(work, "model")

	_, err := ExtractTarGz(context.Background(), archive, dest)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(work, "escaped.txt"))
	assert.True(t, os.IsNotExist(statErr), "file must not be written outside the destination")

	_, statErr = os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))

	leftovers, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestExtractTarGz_SymlinkedDirectoryInside(t *testing.T) {
	archive := writeTarGz(t, []entry{
		{name: "variables/", typeflag: tar.TypeDir, mode: 0o755},
		{name: "vars", typeflag: tar.TypeSymlink, linkname: "variables"},
		{name: "vars/variables.index", body: "index"},
	})
	dest := filepath.Join(t.TempDir(), "out")

	_, err := ExtractTarGz(context.Background(), archive, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "variables", "variables.index"))
	require.NoError(t, err)
	assert.Equal(t, "index", string(data))
}

func TestExtractTarGz_SymlinkInside(t *testing.T) {
	archive := writeTarGz(t, []entry{
		{name: "data/real.txt", body: "content"},
		{name: "alias.txt", typeflag: tar.TypeSymlink, linkname: "data/real.txt"},
	})
	dest := filepath.Join(t.TempDir(), "out")

	_, err := ExtractTarGz(context.Background(), archive, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "alias.txt"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestExtractTarGz_SkipsHardLinks(t *testing.T) {
	archive := writeTarGz(t, []entry{
		{name: "a.txt", body: "a"},
		{name: "b.txt", typeflag: tar.TypeLink, linkname: "a.txt"},
	})
	dest := filepath.Join(t.TempDir(), "out")

	res, err := ExtractTarGz(context.Background(), archive, dest)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Files)

	_, err = os.Lstat(filepath.Join(dest, "b.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractTarGz_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("<html>not an archive</html>"), 0o644))

	_, err := ExtractTarGz(context.Background(), path, filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip reader")
}

func TestExtractTarGz_MissingArchive(t *testing.T) {
	_, err := ExtractTarGz(context.Background(), filepath.Join(t.TempDir(), "missing.tar.gz"), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtractTarGz_CancelledContext(t *testing.T) {
	archive := writeTarGz(t, []entry{{name: "a.txt", body: "a"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "out")
	_, err := ExtractTarGz(ctx, archive, dest)
	require.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}
