package kubesync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

const readChunkSize = 32 * 1024

// readFunc reads a kubeconfig file. It must return promptly once ctx is done.
type readFunc func(ctx context.Context, path string) ([]byte, error)

// readFile reads path in chunks, failing on the first invalid UTF-8
// sequence. A multi-byte sequence truncated by the end of the file is
// invalid. The context is checked between chunks.
func readFile(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{Path: path, Reason: ReasonIO, Err: err}
	}
	defer func() { _ = f.Close() }()

	r := transform.NewReader(f, encoding.UTF8Validator)
	var buf bytes.Buffer
	chunk := make([]byte, readChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(chunk)
		buf.Write(chunk[:n])
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if errors.Is(err, encoding.ErrInvalidUTF8) {
			return nil, &ReadError{Path: path, Reason: ReasonEncoding, Err: ErrInvalidEncoding}
		}
		if err != nil {
			return nil, &ReadError{Path: path, Reason: ReasonIO, Err: err}
		}
	}
}
