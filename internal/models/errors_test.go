package models

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindInvalidRequest.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, KindForbidden.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, KindAmountMismatch.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, KindAlreadyCancelled.HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, KindUnavailable.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, ErrorKind("bogus").HTTPStatus())
}

func TestKindOfUnwrapsChain(t *testing.T) {
	err := fmt.Errorf("create booking: %w", NewError(KindInsufficientInventory, "Not enough tickets available"))

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindInsufficientInventory, kind)
	assert.True(t, errors.Is(err, ErrInsufficientInventory))
	assert.False(t, errors.Is(err, ErrNotFound))

	_, ok = KindOf(errors.New("boom"))
	assert.False(t, ok)
}

func TestWrapErrorKeepsCause(t *testing.T) {
	cause := errors.New("stripe down")
	err := WrapError(KindUnavailable, "Payment provider unavailable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Payment provider unavailable: stripe down", err.Error())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("organizer")
	assert.NoError(t, err)
	assert.Equal(t, RoleOrganizer, r)
	assert.True(t, r.SeesOrganizerStats())
	assert.True(t, RoleAdmin.SeesOrganizerStats())
	assert.False(t, RoleUser.SeesOrganizerStats())

	_, err = ParseRole("superuser")
	assert.Error(t, err)
}
