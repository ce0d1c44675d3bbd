package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/vmarchenko/signon/internal/client/client"
	"github.com/vmarchenko/signon/internal/client/services"
	"github.com/vmarchenko/signon/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// submitUsername starts a sign-in attempt for the given username.
//
// A server-side revocation is reported by the state watcher, so here it only
// distinguishes transport failures from rejections.
func (a *App) submitUsername(ctx context.Context, username string) {
	if username == "" {
		var err error
		username, err = getSimpleText(a.reader, "Enter username", os.Stdout)
		if err != nil {
			log.Printf("Failed to read username: %s", err.Error())
			return
		}
	}

	err := a.sessions.SubmitUsername(ctx, username)
	switch {
	case err == nil:
		log.Printf("Hello %s, enter your password or use your passkey", username)
	case errors.Is(err, client.ErrUnavailable):
		log.Printf("Server unavailable, try again later")
		a.setMode(ModeOffline)
	case errors.Is(err, client.ErrSignedOut):
		// already reported via the published error state
	default:
		log.Printf("Sign-in failed: %s", err.Error())
	}
}

// submitPassword prompts for the password and completes the pending sign-in.
//
// The password byte slice is securely wiped before returning.
func (a *App) submitPassword(ctx context.Context) {
	password, err := getPassword(os.Stdout)
	if err != nil {
		log.Printf("Failed to read password: %s", err.Error())
		return
	}
	defer common.WipeByteArray(password)

	err = a.sessions.SubmitPassword(ctx, password)
	switch {
	case err == nil:
		log.Printf("Signed in")
	case errors.Is(err, client.ErrInvalidCredentials):
		log.Printf("Wrong password, start over with: username <name>")
	case errors.Is(err, services.ErrPrecondition):
		log.Printf("No sign-in in progress, start with: username <name>")
	case errors.Is(err, client.ErrUnavailable):
		log.Printf("Server unavailable, try again later")
		a.setMode(ModeOffline)
	case errors.Is(err, client.ErrSignedOut):
		// already reported via the published error state
	default:
		log.Printf("Sign-in failed: %s", err.Error())
	}
}

// signInWithPasskey completes the pending sign-in with a registered
// credential instead of a password.
func (a *App) signInWithPasskey(ctx context.Context) {
	err := a.sessions.SignInWithCredential(ctx)
	switch {
	case err == nil:
		log.Printf("Signed in with passkey")
	case errors.Is(err, services.ErrPrecondition):
		log.Printf("No sign-in in progress, start with: username <name>")
	case errors.Is(err, client.ErrUnavailable):
		log.Printf("Server unavailable, try again later")
		a.setMode(ModeOffline)
	case errors.Is(err, client.ErrSignedOut):
		// already reported via the published error state
	default:
		log.Printf("Passkey sign-in failed: %s", err.Error())
	}
}

// signOut discards the local session. It never fails.
func (a *App) signOut(ctx context.Context) {
	if err := a.sessions.SignOut(ctx); err != nil {
		log.Printf("Sign-out failed: %s", err.Error())
		return
	}
	log.Printf("Signed out")
}

// whoAmI prints the persisted username, if any.
func (a *App) whoAmI(ctx context.Context) {
	username, err := a.sessions.CurrentUsername(ctx)
	if err != nil {
		log.Printf("Failed to read session: %s", err.Error())
		return
	}
	if username == "" {
		fmt.Println("Not signed in")
		return
	}
	fmt.Println(username)
}
