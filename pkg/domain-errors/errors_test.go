package domainerrors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIs(t *testing.T) {
	t.Run("matches wrapped domain error", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeValidation, "bad email"))
		assert.True(t, Is(err, CodeValidation))
		assert.False(t, Is(err, CodeInternal))
	})

	t.Run("plain error never matches", func(t *testing.T) {
		assert.False(t, Is(errors.New("boom"), CodeInternal))
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeDeliveryFailed, CodeOf(Wrap(errors.New("dial"), CodeDeliveryFailed, "Email delivery failed")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("unclassified")))
}

func TestWrapUnwraps(t *testing.T) {
	root := errors.New("smtp 535")
	err := Wrap(root, CodeDeliveryFailed, "Email delivery failed")
	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "delivery_failed")
}

func TestRateLimitedCarriesReset(t *testing.T) {
	reset := time.Now().Add(10 * time.Minute)
	de, ok := As(RateLimited("Too many requests", reset))
	assert.True(t, ok)
	assert.Equal(t, reset, de.ResetAt)
}
