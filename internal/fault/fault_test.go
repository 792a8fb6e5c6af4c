package fault

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"validation fault", New(Validation, "missing seller key", nil), Validation},
		{"integrity fault", New(Integrity, "auth tag mismatch", nil), Integrity},
		{"wrapped fault survives", pkgerrors.Wrap(New(Settlement, "tx failed", nil), "settle step"), Settlement},
		{"plain error defaults to transient", errors.New("connection reset"), Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(New(Validation, "already fulfilled", nil)))
	assert.False(t, IsRetryable(New(Integrity, "hash mismatch", nil)))
	assert.True(t, IsRetryable(New(Transient, "not yet indexed", nil)))
	assert.True(t, IsRetryable(New(Settlement, "tx failed", nil)))
	assert.True(t, IsRetryable(New(Persistence, "write failed", nil)))
	assert.True(t, IsRetryable(errors.New("socket closed")))
}

func TestErrorFormat(t *testing.T) {
	inner := errors.New("boom")
	f := New(Persistence, "commit fulfillment", inner)
	assert.Contains(t, f.Error(), "PERSISTENCE")
	assert.Contains(t, f.Error(), "boom")
	assert.ErrorIs(t, f, inner)
}
