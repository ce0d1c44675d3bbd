package cli

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/vmarchenko/signon/internal/client/client"
	"github.com/vmarchenko/signon/internal/client/services"
)

// listCredentials prints the locally cached credential list in registration
// order.
func (a *App) listCredentials(ctx context.Context) {
	creds, err := a.sessions.Credentials(ctx)
	if err != nil {
		log.Printf("Failed to read credentials: %s", err.Error())
		return
	}
	if len(creds) == 0 {
		fmt.Println("No registered credentials")
		return
	}
	for i, c := range creds {
		fmt.Printf("%d. %s (%s)\n", i+1, c.ID, c.PublicKey)
	}
}

// registerCredential registers a new credential for the signed-in user.
func (a *App) registerCredential(ctx context.Context) {
	err := a.sessions.RegisterCredential(ctx)
	switch {
	case err == nil:
		log.Printf("Credential registered")
	case errors.Is(err, services.ErrPrecondition):
		log.Printf("Sign in first")
	case errors.Is(err, client.ErrUnavailable):
		log.Printf("Server unavailable, try again later")
		a.setMode(ModeOffline)
	case errors.Is(err, client.ErrSignedOut):
		// already reported via the published error state
	default:
		log.Printf("Registration failed: %s", err.Error())
	}
}

// removeCredential deletes one registered credential by id.
func (a *App) removeCredential(ctx context.Context, credentialID string) {
	err := a.sessions.RemoveCredential(ctx, credentialID)
	switch {
	case err == nil:
		log.Printf("Credential %s removed", credentialID)
	case errors.Is(err, client.ErrUnavailable):
		log.Printf("Server unavailable, try again later")
		a.setMode(ModeOffline)
	case errors.Is(err, client.ErrSignedOut):
		// already reported via the published error state
	default:
		log.Printf("Removal failed: %s", err.Error())
	}
}

// clearCredentials drops the locally cached credential list.
func (a *App) clearCredentials(ctx context.Context) {
	if err := a.sessions.ClearCredentials(ctx); err != nil {
		log.Printf("Failed to clear credentials: %s", err.Error())
		return
	}
	log.Printf("Local credential list cleared")
}

// refreshCredentials reconciles the local credential list with the server.
func (a *App) refreshCredentials(ctx context.Context) {
	err := a.sessions.RefreshCredentials(ctx)
	switch {
	case err == nil:
		log.Printf("Credential list refreshed")
	case errors.Is(err, client.ErrUnavailable):
		log.Printf("Server unavailable, try again later")
		a.setMode(ModeOffline)
	case errors.Is(err, client.ErrSignedOut):
		// already reported via the published error state
	default:
		log.Printf("Refresh failed: %s", err.Error())
	}
}
