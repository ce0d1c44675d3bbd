// Package devserver provides an in-memory implementation of the SignOn auth
// API for local development and end-to-end tests.
//
// It serves the same routes the HTTP client calls: username and password
// submission, credential listing and removal, and the challenge/response
// pairs for credential registration and credential sign-in. Passwords are
// hashed with argon2id, tokens are signed JWTs, and the session token is
// rotated on authenticated responses.
//
// Accounts are held in memory only. RevokeUser terminates a user's sessions
// server-side, which clients observe as a forced sign-out.
package devserver
