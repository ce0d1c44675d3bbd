// Package common contains shared constants and sentinel errors used across
// SignOn components.
package common

// SessionTokenHeaderName is the HTTP header used to carry the session token
// on outbound requests, in "Bearer <token>" form.
const SessionTokenHeaderName = "Authorization"

// SessionTokenScheme prefixes the token value in SessionTokenHeaderName.
const SessionTokenScheme = "Bearer"
