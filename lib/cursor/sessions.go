package cursor

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultSessionTimeout is the idle time after which a session is closed
const DefaultSessionTimeout = 30 * time.Minute

// session is one Manager together with its last access time
type session struct {
	manager  *Manager
	mu       sync.Mutex
	lastSeen time.Time
}

// Sessions hands out one Manager per client session
type Sessions struct {
	opts    Options
	timeout time.Duration
	byID    *xsync.MapOf[string, *session]

	stopOnce sync.Once
	stop     chan struct{}
}

// NewSessions creates a session registry. Managers are created with opts,
// sessions idle for longer than timeout are closed. A non positive timeout
// uses DefaultSessionTimeout.
func NewSessions(opts Options, timeout time.Duration) *Sessions {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Sessions{
		opts:    opts,
		timeout: timeout,
		byID:    xsync.NewMapOf[string, *session](),
		stop:    make(chan struct{}),
	}
	go s.expireLoop()
	return s
}

// Get returns the Manager of a session, creating it on first use
func (s *Sessions) Get(id string) *Manager {
	sess, loaded := s.byID.LoadOrCompute(id, func() *session {
		Logger.Debugf("opening cursor session %s", id)
		return &session{manager: NewManager(s.opts), lastSeen: s.opts.Now()}
	})
	if loaded {
		sess.mu.Lock()
		sess.lastSeen = s.opts.Now()
		sess.mu.Unlock()
	}
	return sess.manager
}

// Drop closes the Manager of a session
func (s *Sessions) Drop(id string) {
	if sess, ok := s.byID.LoadAndDelete(id); ok {
		sess.manager.Close()
	}
}

// Len returns the number of open sessions
func (s *Sessions) Len() int {
	return s.byID.Size()
}

// Expire closes all sessions that were idle for longer than the timeout
func (s *Sessions) Expire() int {
	deadline := s.opts.Now().Add(-s.timeout)
	n := 0
	s.byID.Range(func(id string, sess *session) bool {
		sess.mu.Lock()
		idle := sess.lastSeen.Before(deadline)
		sess.mu.Unlock()
		if !idle {
			return true
		}
		s.byID.Compute(id, func(cur *session, loaded bool) (*session, bool) {
			// the session may have been replaced or touched since Range saw it
			if !loaded || cur != sess {
				return cur, !loaded
			}
			cur.mu.Lock()
			defer cur.mu.Unlock()
			if !cur.lastSeen.Before(deadline) {
				return cur, false
			}
			cur.manager.Close()
			n++
			return nil, true
		})
		return true
	})
	if n > 0 {
		Logger.Infof("closed %d idle cursor sessions", n)
	}
	return n
}

func (s *Sessions) expireLoop() {
	t := time.NewTicker(s.timeout / 2)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Expire()
		case <-s.stop:
			return
		}
	}
}

// Close stops the expiry loop and closes every session
func (s *Sessions) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.byID.Range(func(id string, _ *session) bool {
		s.Drop(id)
		return true
	})
}
