package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seltmann/lfg"
)

func TestReadListFileTrimsAndSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "files.txt")
	require.NoError(t, os.WriteFile(path, []byte("intro.lbm\r\n\r\nsound.voc\n\n"), 0o644))

	got, err := readListFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"intro.lbm", "sound.voc"}, got)
}

func TestPackOptionsDictMode(t *testing.T) {
	cases := []struct {
		kib  int
		want lfg.DictionaryMode
	}{
		{1, lfg.Dict1K},
		{2, lfg.Dict2K},
		{4, lfg.Dict4K},
		{0, lfg.DictAuto},
		{3, lfg.DictAuto},
	}
	for _, c := range cases {
		o := packOptions{windowKiB: c.kib}
		require.Equal(t, c.want, o.dictMode())
	}
}

func TestBestEncodingPicksSmallest(t *testing.T) {
	data := bytes.Repeat([]byte("abcabcabcabc"), 100)
	dictExp, _, err := bestEncoding(data, 0)
	require.NoError(t, err)
	require.Contains(t, []int{4, 5, 6}, dictExp)
}

func TestRunPackProducesReadableArchive(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "a.txt")
	f2 := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(f1, []byte("hello from a"), 0o644))
	require.NoError(t, os.WriteFile(f2, []byte("hello from b, a bit longer"), 0o644))

	outPath := filepath.Join(dir, "OUT____A.XXX")
	opts := packOptions{
		archiveName:     "TESTARC",
		firstVolumeSize: 1 << 20,
		volumeSize:      1 << 20,
		optLevel:        3,
	}
	require.NoError(t, runPack(outPath, []string{f1, f2}, opts))

	rd, err := lfg.NewReader([]string{outPath}, nil, nil)
	require.NoError(t, err)
	defer rd.Close()
	require.Equal(t, "TESTARC", rd.Name)

	info, err := rd.NextHeader()
	require.NoError(t, err)
	require.Equal(t, "a.txt", info.Name)
	var out bytes.Buffer
	require.NoError(t, rd.ExtractCurrent(&out, info.UncompressedLength, nil))
	require.Equal(t, "hello from a", out.String())
}

func TestRunPackOptLevel5(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(f1, []byte("try every combination please"), 0o644))

	outPath := filepath.Join(dir, "OUT2___A.XXX")
	opts := packOptions{
		archiveName:     "TESTARC",
		firstVolumeSize: 1 << 20,
		volumeSize:      1 << 20,
		optLevel:        5,
	}
	require.NoError(t, runPack(outPath, []string{f1}, opts))

	rd, err := lfg.NewReader([]string{outPath}, nil, nil)
	require.NoError(t, err)
	defer rd.Close()

	info, err := rd.NextHeader()
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, rd.ExtractCurrent(&out, info.UncompressedLength, nil))
	require.Equal(t, "try every combination please", out.String())
}
