package token

// IAuthority issues and verifies single use tokens
type IAuthority interface {
	// Issue generates a token for the nonce and action. A previous token for
	// the same pair is replaced.
	Issue(nonce, action string) ([]byte, error)

	// Verify reports whether token is the current token for the nonce and
	// action and consumes it on success.
	Verify(nonce, action string, token []byte) bool

	// Close stops all expiry timers and forgets every token
	Close()
}
