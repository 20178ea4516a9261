package hashutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStablePatternIDIsDeterministic(t *testing.T) {
	id1 := StablePatternID("api", "rest", "handler-naming", "local-1")
	id2 := StablePatternID("api", "rest", "handler-naming", "local-1")
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, StableIDLen)
}

func TestStablePatternIDDiffersPerComponent(t *testing.T) {
	base := StablePatternID("api", "rest", "handler-naming", "local-1")

	variants := []string{
		StablePatternID("auth", "rest", "handler-naming", "local-1"),
		StablePatternID("api", "grpc", "handler-naming", "local-1"),
		StablePatternID("api", "rest", "handler-casing", "local-1"),
		StablePatternID("api", "rest", "handler-naming", "local-2"),
	}
	for _, v := range variants {
		assert.NotEqual(t, base, v)
	}
}
