package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithDetails_DoesNotMutateSentinel(t *testing.T) {
	e := WithDetails(ErrNotEnoughShares, map[string]any{"my_shares": 3})
	assert.Equal(t, 3, e.Details["my_shares"])
	assert.Nil(t, ErrNotEnoughShares.Details)
	assert.True(t, errors.Is(e, ErrNotEnoughShares))
}

func TestAs_WrappedAppError(t *testing.T) {
	err := fmt.Errorf("settle: %w", ErrAlreadySold)
	ae := As(err)
	assert.Equal(t, "ALREADY_SOLD", ae.Code)
	assert.Equal(t, http.StatusConflict, ae.StatusCode)
}

func TestAs_PlainErrorIsInternal(t *testing.T) {
	ae := As(errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", ae.Code)
	assert.EqualError(t, ae.Unwrap(), "boom")
}

func TestLockTimeoutIsRetryable(t *testing.T) {
	e := Wrap(ErrLockTimeout, errors.New("55P03"))
	assert.True(t, e.Retryable)
	assert.Equal(t, http.StatusServiceUnavailable, e.StatusCode)
}
