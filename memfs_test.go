package lfg

import "io"

// memFS is an in-memory filesystem stand-in used to exercise Reader and
// Writer without touching the real filesystem, via the VolumeOpener /
// VolumeCreator / VolumePatcher seams those types expose.
type memFS struct {
	files map[string][]byte
}

func newMemFS() *memFS { return &memFS{files: map[string][]byte{}} }

type memCreator struct{ fs *memFS }

func (c *memCreator) Create(path string) (io.WriteCloser, error) {
	c.fs.files[path] = nil
	return &memHandle{fs: c.fs, path: path}, nil
}

func (c *memCreator) OpenForPatch(path string) (VolumePatchHandle, error) {
	return &memHandle{fs: c.fs, path: path}, nil
}

type memOpener struct{ fs *memFS }

func (o *memOpener) Open(path string) (io.ReadCloser, error) {
	data, ok := o.fs.files[path]
	if !ok {
		return nil, &pathError{path}
	}
	return &memHandle{fs: o.fs, path: path, data: append([]byte(nil), data...)}, nil
}

type pathError struct{ path string }

func (e *pathError) Error() string { return "no such file: " + e.path }

// memHandle implements io.ReadWriteCloser + io.Seeker over a byte slice
// kept in the owning memFS, so writes from one handle are visible to a
// later handle opened on the same path (used by the volume-patch seam).
type memHandle struct {
	fs   *memFS
	path string
	data []byte // used by read handles, which snapshot at Open time
	pos  int
}

func (h *memHandle) Read(p []byte) (int, error) {
	if h.pos >= len(h.data) {
		return 0, io.EOF
	}
	n := copy(p, h.data[h.pos:])
	h.pos += n
	return n, nil
}

func (h *memHandle) Write(p []byte) (int, error) {
	buf := h.fs.files[h.path]
	end := h.pos + len(p)
	if end > len(buf) {
		grown := make([]byte, end)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[h.pos:end], p)
	h.fs.files[h.path] = buf
	h.pos = end
	return len(p), nil
}

func (h *memHandle) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = h.pos
	case io.SeekEnd:
		base = len(h.fs.files[h.path])
	}
	h.pos = base + int(offset)
	return int64(h.pos), nil
}

func (h *memHandle) Close() error { return nil }

// Size reports the total length of the underlying file, satisfying
// volumeSizer so tests can exercise the body-length sanity check.
func (h *memHandle) Size() (int64, error) {
	if h.data != nil {
		return int64(len(h.data)), nil
	}
	return int64(len(h.fs.files[h.path])), nil
}
