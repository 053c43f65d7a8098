package codec

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

/*

A patch turns one serialized payload into the next one.

	[uvarint: length of the new payload]
	repeated until the new length is reached:
		[uvarint: bytes copied from the old payload]
		[uvarint: literal length][literal bytes XOR old payload]

Bytes past the end of the old payload XOR against zero. Consecutive snapshots mostly
share bytes, so patches are short and full of zeros, which the chunk compression eats.

*/

// MAX_PAYLOAD_SIZE caps what a patch may claim to produce. Snapshots are a few
// KiB at most, anything near this comes from a corrupt or hostile file.
const MAX_PAYLOAD_SIZE = 16 << 20

var (
	ErrCorruptPatch = errors.New("corrupt patch")
)

func oldAt(old []byte, i int) byte {
	if i < len(old) {
		return old[i]
	}
	return 0
}

// appendOld appends old[from:to], zero filled past the end of old.
func appendOld(dst, old []byte, from, to uint64) []byte {
	if from < uint64(len(old)) {
		end := to
		if end > uint64(len(old)) {
			end = uint64(len(old))
		}
		dst = append(dst, old[from:end]...)
		from = end
	}
	return append(dst, make([]byte, to-from)...)
}

// Diff appends a patch from old to cur to dst.
func Diff(dst, old, cur []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(cur)))

	pos := 0
	for pos < len(cur) {
		// run of bytes the old payload already has
		same := pos
		for same < len(cur) && cur[same] == oldAt(old, same) {
			same++
		}
		dst = binary.AppendUvarint(dst, uint64(same-pos))
		pos = same
		if pos == len(cur) {
			dst = binary.AppendUvarint(dst, 0)
			break
		}

		// run of changed bytes
		end := pos
		for end < len(cur) && cur[end] != oldAt(old, end) {
			end++
		}
		dst = binary.AppendUvarint(dst, uint64(end-pos))
		for i := pos; i < end; i++ {
			dst = append(dst, cur[i]^oldAt(old, i))
		}
		pos = end
	}
	return dst
}

// Patch applies patch to old and appends the result to dst.
func Patch(dst, old, patch []byte) ([]byte, error) {
	total, n := binary.Uvarint(patch)
	if n <= 0 {
		return dst, errors.Wrap(ErrCorruptPatch, "bad length")
	}
	patch = patch[n:]
	if total > MAX_PAYLOAD_SIZE {
		return dst, errors.Wrap(ErrCorruptPatch, "length out of range")
	}

	base := len(dst)
	pos := uint64(0)
	for pos < total {
		same, n := binary.Uvarint(patch)
		if n <= 0 {
			return dst[:base], errors.Wrap(ErrCorruptPatch, "bad copy run")
		}
		patch = patch[n:]
		if same > total-pos {
			return dst[:base], errors.Wrap(ErrCorruptPatch, "copy run past end")
		}
		dst = appendOld(dst, old, pos, pos+same)
		pos += same

		lit, n := binary.Uvarint(patch)
		if n <= 0 {
			return dst[:base], errors.Wrap(ErrCorruptPatch, "bad literal run")
		}
		patch = patch[n:]
		if lit > total-pos || lit > uint64(len(patch)) {
			return dst[:base], errors.Wrap(ErrCorruptPatch, "literal run past end")
		}
		for i := uint64(0); i < lit; i++ {
			dst = append(dst, patch[i]^oldAt(old, int(pos+i)))
		}
		patch = patch[lit:]
		pos += lit
	}
	if len(patch) != 0 {
		return dst[:base], errors.Wrap(ErrCorruptPatch, "trailing bytes")
	}
	return dst, nil
}
