package protoerr

import (
	"errors"
	"testing"
)

func TestClientMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"request", Request("bad group"), "bad group"},
		{"unauthorized", Unauthorized("not logged in"), "not logged in"},
		{"internal", Internal(errors.New("pool closed")), "internal server error"},
		{"plain", errors.New("boom"), "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientMessage(tt.err); got != tt.want {
				t.Errorf("ClientMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsUnauthorized(t *testing.T) {
	if IsUnauthorized(Request("x")) {
		t.Error("RequestError reported as unauthorized")
	}
	if !IsUnauthorized(Unauthorized("x")) {
		t.Error("UnauthorizedError not reported as unauthorized")
	}
	if IsUnauthorized(Internal(errors.New("x"))) {
		t.Error("InternalError reported as unauthorized")
	}
}

func TestInternalUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Internal(cause)
	if !errors.Is(err, cause) {
		t.Error("Internal error does not unwrap to its cause")
	}
}
