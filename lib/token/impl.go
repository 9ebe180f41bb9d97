package token

import (
	"crypto/subtle"
	"time"

	"github.com/ValentinKolb/dGate/lib/stats"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("token")

// DefaultTimeout is the lifetime of a token
const DefaultTimeout = 30 * time.Second

var (
	tokensIssued   = stats.Counter("dgate_tokens_issued_total")
	tokensVerified = stats.Counter("dgate_tokens_verified_total")
	tokensRejected = stats.Counter("dgate_tokens_rejected_total")
	tokensExpired  = stats.Counter("dgate_tokens_expired_total")
)

// record is one issued token with its expiry timer
type record struct {
	token []byte
	timer *time.Timer
}

type authorityImpl struct {
	timeout time.Duration
	records *xsync.MapOf[string, *record]
}

// NewAuthority creates an authority whose tokens expire after timeout. A non
// positive timeout uses DefaultTimeout.
func NewAuthority(timeout time.Duration) IAuthority {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &authorityImpl{
		timeout: timeout,
		records: xsync.NewMapOf[string, *record](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IAuthority)
// --------------------------------------------------------------------------

func (a *authorityImpl) Issue(nonce, action string) ([]byte, error) {
	tok, err := generateToken()
	if err != nil {
		return nil, err
	}

	key := recordKey(nonce, action)
	rec := &record{token: tok}
	rec.timer = time.AfterFunc(a.timeout, func() { a.expire(key, rec) })

	if old, loaded := a.records.LoadAndStore(key, rec); loaded {
		old.timer.Stop()
	}
	tokensIssued.Inc()
	Logger.Debugf("issued token for action %q", action)
	return tok, nil
}

func (a *authorityImpl) Verify(nonce, action string, token []byte) bool {
	matched := false
	a.records.Compute(recordKey(nonce, action), func(rec *record, loaded bool) (*record, bool) {
		if !loaded {
			return nil, true
		}
		if subtle.ConstantTimeCompare(rec.token, token) != 1 {
			return rec, false
		}
		rec.timer.Stop()
		matched = true
		return nil, true
	})

	if matched {
		tokensVerified.Inc()
	} else {
		tokensRejected.Inc()
		Logger.Debugf("rejected token for action %q", action)
	}
	return matched
}

func (a *authorityImpl) Close() {
	a.records.Range(func(key string, rec *record) bool {
		rec.timer.Stop()
		a.records.Delete(key)
		return true
	})
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// expire removes rec if it is still the current record of key
func (a *authorityImpl) expire(key string, rec *record) {
	a.records.Compute(key, func(cur *record, loaded bool) (*record, bool) {
		if !loaded || cur != rec {
			return cur, !loaded
		}
		tokensExpired.Inc()
		return nil, true
	})
}
