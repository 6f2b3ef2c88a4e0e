package apperr

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestMarkedErrorsSurviveWrapping(t *testing.T) {
	err := Validationf("type is required")
	wrapped := errors.Wrap(err, "create job")

	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Contains(t, wrapped.Error(), "type is required")
}

func TestTransientMark(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transient(cause, "redis lookup")

	assert.True(t, errors.Is(err, ErrTransient))
	assert.Contains(t, err.Error(), "redis lookup")
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		ErrValidation, ErrNotFound, ErrInvalidState,
		ErrConflict, ErrAlreadyDeleted, ErrNotInitialized, ErrTransient,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
		}
	}
}
