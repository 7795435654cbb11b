package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedError(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrCaseNameTaken)
	got := FromError(wrapped)
	assert.Equal(t, "CASE_NAME_TAKEN", got.Code)
	assert.Equal(t, http.StatusConflict, got.Status)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.EqualError(t, got, "internal server error: boom")
	assert.Nil(t, FromError(nil))
}

func TestCloneDoesNotMutateSentinel(t *testing.T) {
	clone := Clone(ErrNotFound, "case not found")
	assert.Equal(t, "case not found", clone.Message)
	assert.Equal(t, "resource not found", ErrNotFound.Message)
}

func TestHasCode(t *testing.T) {
	err := Wrap(errors.New("dup"), ErrAlreadyMember.Code, ErrAlreadyMember.Status, "already")
	assert.True(t, HasCode(err, "ALREADY_MEMBER"))
	assert.False(t, HasCode(errors.New("plain"), "ALREADY_MEMBER"))
}
