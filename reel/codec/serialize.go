// Package codec turns payloads into bytes, diffs consecutive payloads and compresses
// blobs for the recording format.
package codec

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Deterministic encoding keeps diffs between equal payloads empty.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Serialize encodes v as CBOR, appending to dst.
func Serialize(dst []byte, v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return dst, errors.Wrap(err, "failed to marshal payload to CBOR")
	}
	return append(dst, b...), nil
}

// Deserialize decodes CBOR data into v.
func Deserialize(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "failed to unmarshal payload")
	}
	return nil
}
