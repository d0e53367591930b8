package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Default object store prefixes for the two logical namespaces.
const (
	DefaultInputPrefix  = "input/transactions/"
	DefaultOutputPrefix = "output/detections/"
)

const keyTimeLayout = "20060102_150405.000000000"

// ChunkRange is a contiguous half-open range [Start, End) of source rows.
type ChunkRange struct {
	Start int
	End   int
}

// Len returns the number of rows covered by the range.
func (r ChunkRange) Len() int {
	return r.End - r.Start
}

// String implements fmt.Stringer.
func (r ChunkRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// ChunkKey builds the object key for a transaction chunk. The zero padded
// sequence number keeps keys lexically ordered, the timestamp keeps retried
// writes of the same sequence number from colliding.
func ChunkKey(prefix string, seq int, at time.Time) string {
	return fmt.Sprintf("%schunk_%08d_%s.csv", prefix, seq, keyTimestamp(at))
}

// ChunkSequence extracts the sequence number from a key produced by ChunkKey.
func ChunkSequence(key string) (int, bool) {
	name := key[strings.LastIndex(key, "/")+1:]
	if !strings.HasPrefix(name, "chunk_") {
		return 0, false
	}
	rest := strings.TrimPrefix(name, "chunk_")
	idx := strings.IndexByte(rest, '_')
	if idx <= 0 {
		return 0, false
	}
	seq, err := strconv.Atoi(rest[:idx])
	if err != nil {
		return 0, false
	}
	return seq, true
}

// DetectionBatchKey builds the object key for an uploaded detection batch.
func DetectionBatchKey(prefix string, at time.Time) string {
	return fmt.Sprintf("%sdetections_%s.csv", prefix, keyTimestamp(at))
}

func keyTimestamp(at time.Time) string {
	return strings.Replace(at.UTC().Format(keyTimeLayout), ".", "_", 1)
}
