// Package oauth federates authentication to external identity providers.
//
// A Federator wraps one provider: it builds the authorization URL for the
// browser redirect and exchanges the returned code for a verified Identity.
// Google uses OIDC discovery and id_token verification via go-oidc; GitHub
// uses the plain OAuth2 code flow plus the user and emails REST endpoints.
//
// The StateStore binds each handshake to a single-use state value so a
// callback can only complete the exchange it started.
package oauth
