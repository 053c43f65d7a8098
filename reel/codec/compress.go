package codec

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/indrora/reel/reel/format"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// MAX_DECODED_SIZE is the default cap on what one Decompress call may produce.
const MAX_DECODED_SIZE = 256 << 20

var (
	ErrUnknownCompression = errors.New("unknown compression")
	ErrTooLarge           = errors.New("decompressed data exceeds the size limit")
)

type Option func(*Codec)

// WithMaxDecodedSize overrides MAX_DECODED_SIZE.
func WithMaxDecodedSize(n uint64) Option {
	return func(c *Codec) {
		if n > 0 {
			c.maxDecoded = n
		}
	}
}

// Codec compresses and decompresses blobs with one compression type.
// It is not safe for concurrent use; the writer owns one per recording.
type Codec struct {
	compression format.CompressionType
	zEnc        *zstd.Encoder
	zDec        *zstd.Decoder
	buf         bytes.Buffer
	maxDecoded  uint64
}

func New(compression format.CompressionType, opts ...Option) (*Codec, error) {
	c := &Codec{compression: compression, maxDecoded: MAX_DECODED_SIZE}
	for _, opt := range opts {
		opt(c)
	}

	switch compression {
	case format.COMPRESSION_NONE, format.COMPRESSION_BROTLI:
	case format.COMPRESSION_ZSTD:
		var err error
		c.zEnc, err = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create zstd encoder")
		}
		c.zDec, err = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(c.maxDecoded),
		)
		if err != nil {
			c.zEnc.Close()
			return nil, errors.Wrap(err, "failed to create zstd decoder")
		}
	default:
		return nil, errors.Wrapf(ErrUnknownCompression, "type %d", compression)
	}
	return c, nil
}

func (c *Codec) Compression() format.CompressionType {
	return c.compression
}

// Compress appends the compressed form of src to dst.
func (c *Codec) Compress(dst, src []byte) ([]byte, error) {

	switch c.compression {
	case format.COMPRESSION_NONE:
		return append(dst, src...), nil
	case format.COMPRESSION_ZSTD:
		return c.zEnc.EncodeAll(src, dst), nil
	case format.COMPRESSION_BROTLI:
		c.buf.Reset()
		comp := brotli.NewWriter(&c.buf)
		if _, err := comp.Write(src); err != nil {
			return dst, errors.Wrap(err, "failed to compress data")
		}
		if err := comp.Close(); err != nil {
			return dst, errors.Wrap(err, "failed to compress data")
		}
		return append(dst, c.buf.Bytes()...), nil
	default:
		return dst, ErrUnknownCompression
	}
}

// Decompress appends the decompressed form of src to dst.
func (c *Codec) Decompress(dst, src []byte) ([]byte, error) {

	switch c.compression {
	case format.COMPRESSION_NONE:
		if uint64(len(src)) > c.maxDecoded {
			return dst, errors.Wrapf(ErrTooLarge, "%d bytes", len(src))
		}
		return append(dst, src...), nil
	case format.COMPRESSION_ZSTD:
		out, err := c.zDec.DecodeAll(src, dst)
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
			return dst, errors.Wrap(ErrTooLarge, err.Error())
		}
		if err != nil {
			return dst, errors.Wrap(err, "failed to decompress data")
		}
		return out, nil
	case format.COMPRESSION_BROTLI:
		c.buf.Reset()
		r := io.LimitReader(brotli.NewReader(bytes.NewReader(src)), int64(c.maxDecoded)+1)
		if _, err := io.Copy(&c.buf, r); err != nil {
			return dst, errors.Wrap(err, "failed to decompress data")
		}
		if uint64(c.buf.Len()) > c.maxDecoded {
			return dst, errors.Wrapf(ErrTooLarge, "more than %d bytes", c.maxDecoded)
		}
		return append(dst, c.buf.Bytes()...), nil
	default:
		return dst, ErrUnknownCompression
	}
}

func (c *Codec) Close() {
	if c.zEnc != nil {
		c.zEnc.Close()
	}
	if c.zDec != nil {
		c.zDec.Close()
	}
}
