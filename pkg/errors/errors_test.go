package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaults(t *testing.T) {
	e := New(42, 0, "boom", nil)
	assert.Equal(t, 200, e.HttpCode)
	assert.Equal(t, "boom", e.Error())
}

func TestWithErrorKeepsCode(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	e := ErrUpgradeFailed.WithError(cause)

	assert.True(t, Is(e, ErrUpgradeFailed))
	assert.True(t, Is(e, cause))
	assert.Nil(t, ErrUpgradeFailed.Err, "shared error must not be mutated")
	assert.Contains(t, e.Error(), "refused")
}

func TestHTTPStatus(t *testing.T) {
	wrapped := fmt.Errorf("hub: %w", ErrTooManyConnections)
	assert.Equal(t, 503, HTTPStatus(wrapped))
	assert.Equal(t, 500, HTTPStatus(stderrors.New("plain")))
}
