// Package token implements the ephemeral token authority of the command
// channel. A client asks for a token bound to a nonce and an action, hands it
// to the agent that performs the action and the agent verifies it with the
// server. A token is valid for a short time and can be verified only once.
//
// Tokens are 256 random bytes from crypto/rand. Records are keyed by the
// hex encoded SHA-256 of nonce and action, so the authority never stores the
// nonce itself.
//
// Verification is an atomic compare and delete: if the presented token
// matches, the record is removed in the same step, so two concurrent
// verifications of one token can never both succeed. A mismatching token
// leaves the record untouched.
//
// Issuing a second token for the same nonce and action replaces the first.
//
// The authority does not authorize anything. Callers check the roles of the
// principal before they issue or verify a token.
//
// Usage Example:
//
//	auth := token.NewAuthority(token.DefaultTimeout)
//	defer auth.Close()
//
//	tok, err := auth.Issue("client-nonce", "dump-heap")
//	ok := auth.Verify("client-nonce", "dump-heap", tok) // true
//	ok = auth.Verify("client-nonce", "dump-heap", tok)  // false, already used
package token
