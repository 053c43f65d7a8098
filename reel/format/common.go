package format

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"
)

/*

Every recording starts with a preamble followed by the fixed-width file header.

	[magic: 5 bytes "RDEMO"][version: u64]
	[len: u64][size_ext: u64][size_chunks: u64][compression: u8]
	[header ext: SizeExt bytes]
	[chunks: SizeChunks bytes]
	[tail]

All integers are little endian.

*/

const (
	PREAMBLE_STRING = "RDEMO"
	FORMAT_VERSION  = uint64(1)
	FILE_EXTENSION  = ".rdemo"
)

var (
	PREAMBLE_BYTES = [5]byte{'R', 'D', 'E', 'M', 'O'}
)

var (
	ErrBadMagic           = errors.New("not a recording: bad magic")
	ErrUnsupportedVersion = errors.New("unsupported recording version")
	ErrIncomplete         = errors.New("recording was never finalized")
)

type CompressionType uint8

const (
	COMPRESSION_NONE   CompressionType = 0
	COMPRESSION_ZSTD   CompressionType = 1
	COMPRESSION_BROTLI CompressionType = 3
)

func (c CompressionType) String() string {
	switch c {
	case COMPRESSION_NONE:
		return "none"
	case COMPRESSION_ZSTD:
		return "zstd"
	case COMPRESSION_BROTLI:
		return "brotli"
	default:
		return "unknown"
	}
}

// ParseCompression maps a config name onto a compression type.
func ParseCompression(name string) (CompressionType, error) {
	switch name {
	case "", "zstd":
		return COMPRESSION_ZSTD, nil
	case "brotli":
		return COMPRESSION_BROTLI, nil
	case "none":
		return COMPRESSION_NONE, nil
	default:
		return 0, errors.Errorf("unknown compression %q", name)
	}
}

type Preamble struct {
	// Magic value, must be PREAMBLE_BYTES
	Magic [5]byte
	// Format version, must be FORMAT_VERSION
	Version uint64
}

// FileHeader is rewritten once the recording is finished. Until then SizeChunks is 0.
type FileHeader struct {
	// Length of the recording in nanoseconds
	Len uint64
	// Size of the compressed header ext
	SizeExt uint64
	// Size of the chunk section
	SizeChunks uint64
	// Compression used for every blob in the file
	Compression CompressionType
}

// HEADER_SIZE is the number of bytes before the header ext.
var HEADER_SIZE = int64(binary.Size(Preamble{}) + binary.Size(FileHeader{}))

func NewPreamble() Preamble {
	return Preamble{
		Magic:   PREAMBLE_BYTES,
		Version: FORMAT_VERSION,
	}
}

func (h FileHeader) Duration() time.Duration {
	return time.Duration(h.Len)
}

// Finalized reports whether the writer got to rewrite the header.
func (h FileHeader) Finalized() bool {
	return h.SizeChunks != 0
}

// ToBytes returns the preamble and header as they appear at offset 0.
func (h *FileHeader) ToBytes() []byte {

	b := new(bytes.Buffer)

	h.WriteHeader(b)

	return b.Bytes()

}

// WriteHeader writes the preamble followed by the header.
func (h *FileHeader) WriteHeader(w io.Writer) error {

	if err := binary.Write(w, binary.LittleEndian, NewPreamble()); err != nil {
		return errors.Wrap(err, "failed to write preamble")
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	return nil
}

// ReadHeader reads and validates the preamble and header. An unfinished recording
// returns the header together with ErrIncomplete.
func ReadHeader(r io.Reader) (FileHeader, error) {

	var preamble Preamble
	var header FileHeader

	if err := binary.Read(r, binary.LittleEndian, &preamble); err != nil {
		return header, errors.Wrap(err, "failed to read preamble")
	}
	if preamble.Magic != PREAMBLE_BYTES {
		return header, ErrBadMagic
	}
	if preamble.Version != FORMAT_VERSION {
		return header, errors.Wrapf(ErrUnsupportedVersion, "version %d", preamble.Version)
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return header, errors.Wrap(err, "failed to read header")
	}
	if !header.Finalized() {
		return header, ErrIncomplete
	}
	return header, nil
}
