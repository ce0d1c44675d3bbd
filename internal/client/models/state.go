// Package models defines the sign-in state model and credential types shared
// by the session manager, the remote client and the UI layer.
package models

import "fmt"

// Phase enumerates the positions in the sign-in flow. Exactly one phase is
// active at a time.
type Phase string

const (
	// PhaseSignedOut means no username is on record.
	PhaseSignedOut Phase = "signed_out"
	// PhaseSigningIn means the username was accepted by the server but the
	// password or credential has not been verified yet.
	PhaseSigningIn Phase = "signing_in"
	// PhaseSignedIn means the user is fully authenticated and the session
	// token is valid.
	PhaseSignedIn Phase = "signed_in"
	// PhaseError is terminal for the current attempt; the flow must restart
	// from PhaseSignedOut.
	PhaseError Phase = "error"
)

// SignInState is a snapshot of the sign-in flow published to observers.
// Username is set for PhaseSigningIn and PhaseSignedIn; Message is set for
// PhaseError.
type SignInState struct {
	Phase    Phase
	Username string
	Message  string
}

func SignedOut() SignInState {
	return SignInState{Phase: PhaseSignedOut}
}

func SigningIn(username string) SignInState {
	return SignInState{Phase: PhaseSigningIn, Username: username}
}

func SignedIn(username string) SignInState {
	return SignInState{Phase: PhaseSignedIn, Username: username}
}

func SignInError(message string) SignInState {
	return SignInState{Phase: PhaseError, Message: message}
}

// DeriveState computes the state implied by the persisted fields:
// no username means signed out, a username without a token means an
// in-progress sign-in, and both mean a valid session.
//
// A token without a username violates the persistence invariant and is
// treated as signed out.
func DeriveState(username, token string) SignInState {
	switch {
	case username == "":
		return SignedOut()
	case token == "":
		return SigningIn(username)
	default:
		return SignedIn(username)
	}
}

func (s SignInState) String() string {
	switch s.Phase {
	case PhaseSigningIn, PhaseSignedIn:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Username)
	case PhaseError:
		return fmt.Sprintf("%s(%s)", s.Phase, s.Message)
	default:
		return string(s.Phase)
	}
}
