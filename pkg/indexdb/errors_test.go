package indexdb

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", fmt.Errorf("commit: %w", context.DeadlineExceeded), true},
		{"eof", io.ErrUnexpectedEOF, true},
		{"bad conn", driver.ErrBadConn, true},
		{"conflict", ErrBlockConflict, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.True(t, IsFatal(fmt.Errorf("wrap: %w", ErrBlockConflict)))
	assert.False(t, IsFatal(context.DeadlineExceeded))
	assert.False(t, IsFatal(errors.New("boom")))
}
