package conn

import (
	"github.com/google/uuid"

	"github.com/comcore-chat/comcore-server/internal/code"
)

type stateKind int

const (
	stateLoggedOut stateKind = iota
	stateConfirmEmail
	stateResetPassword
	stateLoggedIn
)

// loginState is the per-connection login state. Only the fields relevant to kind are meaningful.
type loginState struct {
	kind stateKind

	// ConfirmEmail
	email       string
	confirmKind code.Kind

	// ResetPassword, LoggedIn
	userID uuid.UUID

	// LoggedIn
	name      string
	authToken string
}

func loggedOutState() loginState {
	return loginState{kind: stateLoggedOut}
}

func confirmEmailState(email string, kind code.Kind) loginState {
	return loginState{kind: stateConfirmEmail, email: email, confirmKind: kind}
}

func resetPasswordState(userID uuid.UUID) loginState {
	return loginState{kind: stateResetPassword, userID: userID}
}

func loggedInState(userID uuid.UUID, name, token string) loginState {
	return loginState{kind: stateLoggedIn, userID: userID, name: name, authToken: token}
}
