package device

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Snapshots are stored as deterministic CBOR. Integers decode as int64
// and nested maps as map[string]any so a round-tripped snapshot merges
// cleanly with live deltas.
var (
	snapshotEnc cbor.EncMode
	snapshotDec cbor.DecMode
)

func init() {
	var err error
	snapshotEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("device: building cbor encoder: %v", err))
	}
	snapshotDec, err = cbor.DecOptions{
		IntDec:         cbor.IntDecConvertSigned,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("device: building cbor decoder: %v", err))
	}
}

// EncodeSnapshot serialises a status snapshot. A nil or empty map encodes to nil.
func EncodeSnapshot(status map[string]any) ([]byte, error) {
	if len(status) == 0 {
		return nil, nil
	}
	b, err := snapshotEnc.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotCodec, err)
	}
	return b, nil
}

// DecodeSnapshot parses a blob produced by EncodeSnapshot. Empty input yields nil.
func DecodeSnapshot(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var status map[string]any
	if err := snapshotDec.Unmarshal(b, &status); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotCodec, err)
	}
	return status, nil
}
