package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seltmann/lfg"
)

func packTestArchive(t *testing.T, path string, files map[string]string) {
	t.Helper()
	w, err := lfg.NewWriter(path, lfg.WriterOptions{
		ArchiveName:     "TESTARC",
		FirstVolumeSize: 1 << 20,
		VolumeSize:      1 << 20,
		DictMode:        lfg.DictAuto,
	})
	require.NoError(t, err)
	for name, content := range files {
		require.NoError(t, w.WriteFile(name, uint32(len(content)), bytes.NewReader([]byte(content)), nil))
	}
	require.NoError(t, w.Close())
}

func TestExtractFileWritesDecodedContent(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "A____A.XXX")
	packTestArchive(t, archivePath, map[string]string{"HELLO.TXT": "hello, world"})

	rd, err := lfg.NewReader([]string{archivePath}, nil, nil)
	require.NoError(t, err)
	defer rd.Close()

	info, err := rd.NextHeader()
	require.NoError(t, err)

	outDir := t.TempDir()
	require.NoError(t, extractFile(rd, info, outDir, false, nil))

	got, err := os.ReadFile(filepath.Join(outDir, "HELLO.TXT"))
	require.NoError(t, err)
	require.Equal(t, "hello, world", string(got))
}

func TestExtractFileRefusesToOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "A____A.XXX")
	packTestArchive(t, archivePath, map[string]string{"HELLO.TXT": "hello, world"})

	rd, err := lfg.NewReader([]string{archivePath}, nil, nil)
	require.NoError(t, err)
	defer rd.Close()

	info, err := rd.NextHeader()
	require.NoError(t, err)

	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "HELLO.TXT"), []byte("already here"), 0o644))

	err = extractFile(rd, info, outDir, false, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, lfg.ErrOutputExists))
}

func TestExtractFileForceOverwrites(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "A____A.XXX")
	packTestArchive(t, archivePath, map[string]string{"HELLO.TXT": "hello, world"})

	rd, err := lfg.NewReader([]string{archivePath}, nil, nil)
	require.NoError(t, err)
	defer rd.Close()

	info, err := rd.NextHeader()
	require.NoError(t, err)

	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "HELLO.TXT"), []byte("already here"), 0o644))

	require.NoError(t, extractFile(rd, info, outDir, true, nil))
	got, err := os.ReadFile(filepath.Join(outDir, "HELLO.TXT"))
	require.NoError(t, err)
	require.Equal(t, "hello, world", string(got))
}

func TestExtractOneReturnsVolumesUsed(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "A____A.XXX")
	packTestArchive(t, archivePath, map[string]string{
		"ONE.TXT": "first file contents",
		"TWO.TXT": "second file contents",
	})

	outDir := t.TempDir()
	used := extractOne([]string{archivePath}, false, false, true, outDir)
	require.Equal(t, 1, used)

	for _, name := range []string{"ONE.TXT", "TWO.TXT"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		require.NoError(t, err)
	}
}
