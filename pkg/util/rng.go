package util

import "math/rand"

// NewRand returns a seeded generator. The kernel itself is deterministic; only
// the reference policy modules draw from this, so two worlds built with the
// same seed and params replay identically.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
