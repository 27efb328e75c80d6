package dataset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"github.com/ulikunitz/xz"
)

type BundleFormat string

const (
	BundleFormatNone BundleFormat = "none"
	BundleFormatGZ                = "gz"
	BundleFormatZstd              = "zst"
	BundleFormatXZ                = "xz"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// FormatFromPath guesses the compression of a file from its extension.
func FormatFromPath(path string) BundleFormat {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		return BundleFormatGZ
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		return BundleFormatZstd
	case strings.HasSuffix(lower, ".xz"):
		return BundleFormatXZ
	}
	return BundleFormatNone
}

// Exists reports whether path names a readable regular file.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Open returns a reader over the decompressed contents of path.
func Open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	buffered := bufio.NewReader(file)

	format := FormatFromPath(path)
	if format == BundleFormatNone {
		format = sniffFormat(buffered)
	}

	reader, err := decompress(buffered, format)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("decompress %s (%s): %w", path, format, err)
	}

	log.Debug().Str("path", path).Str("format", string(format)).Msg("Opened input")

	return &bundleReader{Reader: reader, closers: []io.Closer{reader, file}}, nil
}

func sniffFormat(r *bufio.Reader) BundleFormat {
	header, _ := r.Peek(len(xzMagic))

	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return BundleFormatGZ
	case bytes.HasPrefix(header, zstdMagic):
		return BundleFormatZstd
	case bytes.HasPrefix(header, xzMagic):
		return BundleFormatXZ
	}
	return BundleFormatNone
}

func decompress(r io.Reader, format BundleFormat) (io.ReadCloser, error) {
	switch format {
	case BundleFormatNone:
		return io.NopCloser(r), nil
	case BundleFormatGZ:
		return gzip.NewReader(r)
	case BundleFormatZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return decoder.IOReadCloser(), nil
	case BundleFormatXZ:
		xzReader, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xzReader), nil
	}

	return nil, errors.New(fmt.Sprintf("Unrecognised bundle format %s", format))
}

type bundleReader struct {
	io.Reader
	closers []io.Closer
}

func (b *bundleReader) Close() error {
	var errs []error
	for _, closer := range b.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
