package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded")), true},
		{"wrapped explicit", fmt.Errorf("save: %w", NewTransientError(errors.New("x"))), true},
		{"plain", errors.New("invalid input"), false},
		{"conn reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, true},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, true},
		{"pg connection class", &pgconn.PgError{Code: "08006"}, true},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
