package utils

import (
	"hash/fnv"

	"github.com/google/uuid"
)

// LockKey derives a signed 64-bit advisory lock key for id within namespace.
func LockKey(namespace string, id uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(namespace))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write(id[:])
	return int64(h.Sum64())
}
