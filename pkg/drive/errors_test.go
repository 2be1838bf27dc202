package drive

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCategorization(t *testing.T) {
	err := NotFound("e1")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsForbidden(err))
	assert.Equal(t, ErrNotFound, CodeOf(err))

	wrapped := fmt.Errorf("listing folder: %w", Forbidden("nope"))
	assert.True(t, IsForbidden(wrapped))
	assert.Equal(t, ErrForbidden, CodeOf(wrapped))
}

func TestCodeOfNonServiceError(t *testing.T) {
	assert.Equal(t, ErrInternal, CodeOf(errors.New("boom")))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "nope", MessageOf(Forbidden("nope"), "fallback"))
	assert.Equal(t, "fallback", MessageOf(errors.New("raw internals"), "fallback"))
}

func TestServiceErrorString(t *testing.T) {
	assert.Equal(t, "entry not found: e1", NotFound("e1").Error())
	assert.Equal(t, "bad input", Validation("bad input").Error())
}
