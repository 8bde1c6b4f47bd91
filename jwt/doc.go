// Package jwt issues and verifies the platform's typed bearer tokens.
//
// Tokens carry the identity id in the standard sub claim and a type claim
// naming their purpose (access, refresh, resetPassword, verifyEmail). Only
// access tokens authenticate HTTP requests and realtime handshakes; the other
// types are minted for account flows and rejected by [Manager.ParseAccess].
//
// Verification is strict: the algorithm is pinned to the configured method,
// expiry is required, and issuer, audience and kid are checked when
// configured.
package jwt
