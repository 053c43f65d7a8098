package ioutil

import (
	"hash"
	"io"

	"github.com/pkg/errors"
)

// CountingWriter tracks how many bytes went through to the destination.
// The writer uses it to compute chunk offsets without asking the file.
type CountingWriter struct {
	writer  io.Writer
	written uint64
}

func NewCountingWriter(destination io.Writer) *CountingWriter {
	return &CountingWriter{
		writer: destination,
	}
}

func (k *CountingWriter) Write(p []byte) (n int, err error) {
	written, err := k.writer.Write(p)
	k.written += uint64(written)
	return written, err
}

// WriteWhole writes all of p or fails.
func (k *CountingWriter) WriteWhole(p []byte) error {
	n, err := k.Write(p)
	if err != nil {
		return errors.Wrap(err, "failed to write block")
	}
	if n != len(p) {
		return errors.Wrapf(io.ErrShortWrite, "wrote %d of %d bytes", n, len(p))
	}
	return nil
}

func (k *CountingWriter) Written() uint64 {
	return k.written
}

type HashWriter struct {
	writer io.Writer
	hasher hash.Hash
}

func NewHashWriter(dest io.Writer, hasher hash.Hash) *HashWriter {
	return &HashWriter{
		writer: dest,
		hasher: hasher,
	}
}

func (w *HashWriter) Write(b []byte) (int, error) {
	k, err := w.writer.Write(b)
	w.hasher.Write(b[:k])
	if err != nil {
		return k, err
	}
	return k, nil
}

func (w *HashWriter) Sum() []byte {
	return w.hasher.Sum(nil)
}
