package errs

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("verify: %w", CodeMismatch(2))
	assert.ErrorIs(t, err, ErrCodeMismatch)
	assert.NotErrorIs(t, err, ErrSessionLocked)
	assert.Equal(t, KindCodeMismatch, KindOf(err))

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, 2, e.RemainingAttempts)
}

func TestCooldownCarriesRetryAfter(t *testing.T) {
	e, ok := As(ResendCooldown(42 * time.Second))
	require.True(t, ok)
	assert.Equal(t, 42*time.Second, e.RetryAfter)
	assert.Equal(t, ActionWait, e.Action)
}

func TestDispatchFailedUnwraps(t *testing.T) {
	cause := errors.New("twilio: 500")
	err := DispatchFailed(cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrDispatchFailed)
	assert.Contains(t, err.Error(), "twilio: 500")
}

func TestKindOfUntyped(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
}
