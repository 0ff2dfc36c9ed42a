package service_test

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/poolpilot/alerts/internal/poolpilot/service"
)

func TestDeliveryError_RedactsDestination(t *testing.T) {
	cause := errors.New("rejected")
	err := &service.DeliveryError{Channel: "sms", Destination: "+15551234567", Err: cause}

	assert.Equal(t, "deliver via sms to ***4567: rejected", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestRedactDestination(t *testing.T) {
	assert.Equal(t, "o***@example.com", service.RedactDestination("ops@example.com"))
	assert.Equal(t, "***", service.RedactDestination("123"))
	assert.Equal(t, "***@example.com", service.RedactDestination("@example.com"))
}

func TestRedactDestination_MultibyteRunes(t *testing.T) {
	got := service.RedactDestination("émile@example.com")
	assert.Equal(t, "é***@example.com", got)
	assert.True(t, utf8.ValidString(got))

	got = service.RedactDestination("０１２３４５")
	assert.Equal(t, "***２３４５", got)
	assert.True(t, utf8.ValidString(got))
}

func TestStoreError_Unwraps(t *testing.T) {
	cause := errors.New("locked")
	err := error(&service.StoreError{Op: "acknowledge", Err: cause})

	assert.Equal(t, "store acknowledge: locked", err.Error())
	assert.ErrorIs(t, err, cause)
}
