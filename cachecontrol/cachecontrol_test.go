package cachecontrol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrecedence(t *testing.T) {
	assert.Equal(t, int64(0), Parse("private, max-age=600").MaxAge)
	assert.Equal(t, int64(10), Parse("s-maxage=10, max-age=20").MaxAge)
	assert.Equal(t, int64(MustRevalidate), Parse("must-revalidate, max-age=60").MaxAge)
	assert.Equal(t, int64(Unspecified), Parse("").MaxAge)
	assert.Equal(t, int64(Unspecified), Parse("public").MaxAge)
}

func TestAmbiguousPublicNoCache(t *testing.T) {
	// spec.md §9 Open Question: "public, no-cache" should behave as
	// no-cache (maxAge=0).
	assert.Equal(t, int64(0), Parse("public, no-cache").MaxAge)
}

func TestMaxAgeNegativeIgnored(t *testing.T) {
	assert.Equal(t, int64(Unspecified), Parse("max-age=-5").MaxAge)
}
