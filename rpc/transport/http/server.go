package http

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dGate/lib/auth"
	"github.com/ValentinKolb/dGate/lib/stats"
	"github.com/ValentinKolb/dGate/rpc/common"
	"github.com/ValentinKolb/dGate/rpc/transport"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

const (
	// SessionCookie is the name of the session cookie
	SessionCookie = "DGATE_SESSION"
	// maxBodyBytes limits the size of a request
	maxBodyBytes = 64 << 20
	// defaultSessionTimeout applies if the config has none
	defaultSessionTimeout = 30 * time.Minute
)

// session is one issued session cookie. It remembers the principal and a
// digest of the credentials it was authenticated with, so later requests
// with the same credentials skip the password hash.
type session struct {
	principal *auth.Principal
	digest    [sha256.Size]byte
	lastSeen  atomic.Int64
}

// ServerTransport serves the gateway over HTTP
type ServerTransport struct {
	authn   auth.IAuthenticator
	handler transport.ServerHandleFunc
	config  common.ServerConfig

	sessions *xsync.MapOf[string, *session]

	mu     sync.Mutex
	server *http.Server
	stop   chan struct{}
}

// NewHttpServerTransport creates a transport that authenticates every request with authn
func NewHttpServerTransport(authn auth.IAuthenticator) *ServerTransport {
	return &ServerTransport{
		authn:    authn,
		sessions: xsync.NewMapOf[string, *session](),
		stop:     make(chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *ServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *ServerTransport) Listen(config common.ServerConfig) error {
	t.config = config

	t.mu.Lock()
	t.server = &http.Server{
		Addr:              config.Endpoint,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := t.server
	t.mu.Unlock()

	go t.sweepSessions()

	Logger.Infof("Starting HTTP server on %s", config.Endpoint)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (t *ServerTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	srv := t.server
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	t.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Handler returns the HTTP handler of the transport. Listen serves it, tests
// can mount it on an httptest server.
func (t *ServerTransport) Handler() http.Handler {
	mux := http.NewServeMux()

	if t.config.LogLevel == "debug" {
		mux.HandleFunc("POST /{$}", loggerMiddleware(t.handleRequest))
	} else {
		mux.HandleFunc("POST /{$}", t.handleRequest)
	}
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		stats.WritePrometheus(w)
	})

	return mux
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleRequest authenticates the caller, resolves its session and hands the body to the handler
func (t *ServerTransport) handleRequest(w http.ResponseWriter, r *http.Request) {
	if t.handler == nil {
		http.Error(w, "no handler registered", http.StatusServiceUnavailable)
		return
	}

	// Authenticate
	user, password, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="dgate"`)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	digest := credentialDigest(user, password)
	sessionID, principal := t.lookupSession(r, digest)
	if principal == nil {
		var err error
		if principal, err = t.authn.Authenticate(user, password); err != nil {
			Logger.Warningf("failed login for user %q from %s", user, r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="dgate"`)
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		sessionID = t.newSession(w, principal, digest)
	}

	// Read request body
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	defer r.Body.Close()
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	resp, status := t.handler(transport.Request{
		Body:      body,
		Principal: principal,
		SessionID: sessionID,
	})

	w.WriteHeader(httpStatus(status))
	if _, err = w.Write(resp); err != nil {
		Logger.Warningf("failed to write response: %v", err)
	}
}

// credentialDigest binds a session to the exact credentials of its login
func credentialDigest(user, password string) [sha256.Size]byte {
	return sha256.Sum256([]byte(user + "\x00" + password))
}

// lookupSession returns the session of the request if its cookie is live and
// was issued for the same credentials, otherwise a nil principal
func (t *ServerTransport) lookupSession(r *http.Request, digest [sha256.Size]byte) (string, *auth.Principal) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", nil
	}
	s, ok := t.sessions.Load(c.Value)
	if !ok || subtle.ConstantTimeCompare(s.digest[:], digest[:]) != 1 {
		return "", nil
	}
	s.lastSeen.Store(time.Now().UnixNano())
	return c.Value, s.principal
}

// newSession issues a session cookie for an authenticated principal
func (t *ServerTransport) newSession(w http.ResponseWriter, principal *auth.Principal, digest [sha256.Size]byte) string {
	id := uuid.NewString()
	s := &session{principal: principal, digest: digest}
	s.lastSeen.Store(time.Now().UnixNano())
	t.sessions.Store(id, s)

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	Logger.Debugf("issued session %s to %s", id, principal.Name)
	return id
}

// sweepSessions forgets idle sessions until the transport shuts down
func (t *ServerTransport) sweepSessions() {
	timeout := t.config.SessionTimeout
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.expireSessions(time.Now().Add(-timeout))
		case <-t.stop:
			return
		}
	}
}

// expireSessions removes all sessions not seen since deadline
func (t *ServerTransport) expireSessions(deadline time.Time) int {
	n := 0
	t.sessions.Range(func(id string, s *session) bool {
		if s.lastSeen.Load() < deadline.UnixNano() {
			t.sessions.Delete(id)
			n++
		}
		return true
	})
	return n
}

// httpStatus maps a handler status to the HTTP status code
func httpStatus(s common.Status) int {
	switch s {
	case common.StatusOK:
		return http.StatusOK
	case common.StatusBadRequest:
		return http.StatusBadRequest
	case common.StatusUnauthorized:
		return http.StatusUnauthorized
	case common.StatusForbidden:
		return http.StatusForbidden
	case common.StatusUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// statusFromHTTP maps an HTTP status code back to a handler status
func statusFromHTTP(code int) common.Status {
	switch code {
	case http.StatusOK:
		return common.StatusOK
	case http.StatusBadRequest:
		return common.StatusBadRequest
	case http.StatusUnauthorized:
		return common.StatusUnauthorized
	case http.StatusForbidden:
		return common.StatusForbidden
	case http.StatusServiceUnavailable:
		return common.StatusUnavailable
	default:
		return common.StatusInternal
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		// Log the request
		duration := time.Since(start)
		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, duration)
	}
}
