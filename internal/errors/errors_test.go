package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindUnknown, "unknown error"},
		{KindNotFound, "not found"},
		{KindInvalid, "invalid"},
		{KindIO, "I/O error"},
		{KindConfig, "configuration error"},
		{KindEngine, "engine operation failed"},
		{KindStatus, "status computation failed"},
		{KindCrypto, "crypto error"},
		{KindAuth, "authentication error"},
		{Kind(999), "unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "with op and context",
			err:      &Error{Op: "workflow.Commit", Context: "amend", Err: errors.New("boom")},
			expected: "workflow.Commit: amend: boom",
		},
		{
			name:     "with op only",
			err:      &Error{Op: "workflow.Commit", Err: errors.New("boom")},
			expected: "workflow.Commit: boom",
		},
		{
			name:     "without op",
			err:      &Error{Err: errors.New("boom")},
			expected: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestEWithoutUnderlyingError(t *testing.T) {
	err := E(Op("git.Stage"), KindInvalid, "path is empty")

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, "path is empty", e.Err.Error())
	assert.Empty(t, e.Context)
	assert.Equal(t, KindInvalid, e.Kind)
}

func TestEInheritsKind(t *testing.T) {
	inner := E(Op("credentials.decrypt"), KindCrypto, errors.New("bad padding"))
	outer := E(Op("credentials.GetHTTPCredentials"), inner)

	assert.True(t, Is(outer, KindCrypto))
	assert.Equal(t, KindCrypto, GetKind(fmt.Errorf("wrapped: %w", outer)))
}

func TestGetKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, GetKind(errors.New("plain")))
	assert.False(t, Is(nil, KindEngine))
}
