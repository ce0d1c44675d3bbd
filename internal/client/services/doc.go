// Package services implements the SignOn session state machine and its
// observer surface.
//
// # Overview
//
// SessionService is the single owner of the persisted session record. Every
// transition reads durable state, calls the remote auth client, applies the
// resulting durable mutation atomically, and publishes the new SignInState
// as its last step. StateBroadcaster delivers published states to observers
// with replay-of-one and drop-oldest-on-overflow semantics.
//
// # States
//
// The flow moves between four phases: signed out, signing in (username
// accepted), signed in (session token valid) and error (attempt failed,
// restart required). How persisted fields map onto phases is defined by
// models.DeriveState.
//
// # Error Handling
//
// Remote revocation (client.ErrSignedOut) always forces a local sign-out
// and publishes an error state. Rejected credentials clear the attempt and
// publish an error state. Transport failures mutate nothing and are
// returned to the caller, who may retry the same operation. Wrong-state
// calls fail with ErrPrecondition without publishing.
package services
