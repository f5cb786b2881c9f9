// Package token implements the signed claims codec for access and refresh tokens.
//
// # Token format
//
// Standard three-part JWTs (header.payload.signature) signed with HS256 or
// Ed25519. The payload carries sub, role, kind, sid, jti, iat, and exp. The
// signature is always verified before any payload field is trusted; the
// configured clock-skew leeway applies to expiry checks only.
//
// # Architecture boundaries
//
// This package owns encoding, decoding, and signature verification. Whether a
// refresh token identifier is still current is decided by the session registry,
// not here.
//
// # What this package must NOT do
//
//   - Consult the session registry or perform any I/O.
//   - Import any other authcore package.
//   - Accept a token whose signature fails, whatever the payload says.
package token
