package aof

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nubdb/nubdb/pkg/hashindex"
)

// Replay opens the log at path and applies each frame directly to idx,
// bypassing any Writer (spec section 4.3: "must not route applied
// operations back through the Writer"). It is invoked once at engine
// initialization, before user operations are accepted, and is
// effectively single-threaded.
//
// A truncated trailing frame — as would result from a crash mid-append —
// is treated as the end of the log; everything decoded before it is kept.
// A well-formed frame with an out-of-range length or an unrecognized op
// byte is a corruption error that fails startup, since it cannot be
// explained by a partial write at the tail.
func Replay(path string, idx *hashindex.Index) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("aof: failed to open log for replay: %w", err)
	}
	defer file.Close()

	for {
		frame, err := Decode(file)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				// Truncated trailing frame: the source behavior accepts
				// that it is lost, and treats the log as ending here.
				return nil
			}
			return fmt.Errorf("aof: replay failed: %w", err)
		}

		if len(frame.Key) > KeyMax {
			return fmt.Errorf("%w: key length %d exceeds %d", ErrKeyTooLarge, len(frame.Key), KeyMax)
		}
		if len(frame.Value) > ValueMax {
			return fmt.Errorf("%w: value length %d exceeds %d", ErrValueTooLarge, len(frame.Value), ValueMax)
		}

		switch frame.Op {
		case OpSet:
			idx.Put(frame.Key, hashindex.Record{Bytes: frame.Value, ExpiresAt: 0})
		case OpDelete:
			idx.Remove(frame.Key)
		default:
			return fmt.Errorf("%w: op=%d", ErrUnknownOp, frame.Op)
		}
	}
}
