package protocol

import "errors"

// Allocation limits to prevent DoS via malicious length prefixes.
const (
	// MaxAllocation is the largest single string or byte slice the decoder
	// will allocate (4MB).
	MaxAllocation = 4 * 1024 * 1024

	// MaxCollectionCount is the maximum number of items in a list
	// (pages, widget states, strings).
	MaxCollectionCount = 100_000

	// MaxPathDepth limits widget nesting. Every container adds one level,
	// so 256 is far beyond any real page.
	MaxPathDepth = 256
)

// ErrMaxDepthExceeded is returned when a widget path is deeper than MaxPathDepth.
var ErrMaxDepthExceeded = errors.New("protocol: maximum path depth exceeded")
