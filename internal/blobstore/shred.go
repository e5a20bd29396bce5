package blobstore

import (
	"crypto/rand"
	"io"
	"os"

	"golang.org/x/xerrors"
)

const shredBufSize = 64 * 1024

// overwritePass fills f, from the start, with size bytes of random data and
// fsyncs before returning, so the pass is durable even if the process dies
// immediately after.
func overwritePass(f *os.File, size int64) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return xerrors.Errorf("seek: %w", err)
	}

	buf := make([]byte, shredBufSize)
	var written int64
	for written < size {
		n := int64(len(buf))
		if remaining := size - written; remaining < n {
			n = remaining
		}
		if _, err := rand.Read(buf[:n]); err != nil {
			return xerrors.Errorf("fill random: %w", err)
		}
		if _, err := f.Write(buf[:n]); err != nil {
			return xerrors.Errorf("write: %w", err)
		}
		written += n
	}
	return f.Sync()
}
