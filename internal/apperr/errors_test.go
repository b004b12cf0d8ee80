package apperr_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"nirsvault/internal/apperr"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := apperr.MalformedHeaderField("Date", nil)

	assert.True(t, errors.Is(err, apperr.ErrMalformedHeaderField))
	assert.False(t, errors.Is(err, apperr.ErrArrayTerminatorNotFound))

	wrapped := fmt.Errorf("group VM0001: %w", err)
	assert.True(t, errors.Is(wrapped, apperr.ErrMalformedHeaderField))
	assert.Equal(t, apperr.KindMalformedHeaderField, apperr.KindOf(wrapped))
}

func TestError_UnwrapsCause(t *testing.T) {
	err := apperr.SinkWriteFailure("HubSubject", io.ErrUnexpectedEOF)

	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.True(t, errors.Is(err, apperr.ErrSinkWriteFailure))
	assert.Equal(t, "HubSubject", err.Context["table"])
	assert.Contains(t, err.Error(), "SINK_WRITE_FAILURE")
	assert.Contains(t, err.Error(), "unexpected EOF")
}

func TestKindOf_Plain(t *testing.T) {
	assert.Equal(t, apperr.Kind(""), apperr.KindOf(errors.New("plain")))
	assert.Equal(t, apperr.Kind(""), apperr.KindOf(nil))
}

func TestNaturalKeyCollision_Message(t *testing.T) {
	err := apperr.NaturalKeyCollision("2020-02-01 10:00:00_x", "a.csv", "b.csv")
	assert.Equal(t,
		`[NATURAL_KEY_COLLISION] sequence "2020-02-01 10:00:00_x" produced by both a.csv and b.csv`,
		err.Error())
}
