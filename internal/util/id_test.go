package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	a := NewID("post")
	b := NewID("post")
	assert.True(t, strings.HasPrefix(a, "post_"))
	assert.Len(t, a, len("post_")+32)
	assert.NotEqual(t, a, b)
	assert.Len(t, NewID(""), 32)
}
