// Package testutils provides deterministic generators for ntropiq testing and --test-mode.
// These utilities keep ids stable across runs while preserving the production uuid format.
package testutils

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDFunc returns a fresh unique identifier.
type IDFunc func() string

// RandomIDs returns an IDFunc producing random v4 uuids.
func RandomIDs() IDFunc {
	return uuid.NewString
}

// DeterministicIDs returns an IDFunc producing uuids in the format
// 00000001-0000-4000-8000-000000000001, 00000002-0000-4000-8000-000000000002, ...
// Each returned function has its own counter.
func DeterministicIDs() IDFunc {
	var (
		mu      sync.Mutex
		counter uint64
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		counter++
		return fmt.Sprintf("%08x-0000-4000-8000-%012x", counter, counter)
	}
}

// IDs picks a generator by mode.
func IDs(testMode bool) IDFunc {
	if testMode {
		return DeterministicIDs()
	}
	return RandomIDs()
}
