package cursor

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/lib/stats"
	"github.com/ValentinKolb/dGate/lib/storage"
	"github.com/ValentinKolb/dGate/lib/util"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("cursor")

const (
	// NotStored is returned by Put for streams without remaining rows
	NotStored int32 = -1
	// DefaultTimeout is the idle time after which a cursor is closed
	DefaultTimeout = 3 * time.Minute
	// DefaultBatchSize is the page size used when a client asks for none
	DefaultBatchSize = 100
)

// ErrNoSuchCursor is returned for ids that are unknown, expired or exhausted
var ErrNoSuchCursor = errors.New("no such cursor")

// openCursors counts the stored cursors of all managers
var openCursors atomic.Int64

func init() {
	stats.Gauge("dgate_cursors_open", func() float64 {
		return float64(openCursors.Load())
	})
}

// Options configures a Manager
type Options struct {
	// Timeout is the idle time after which a cursor is swept, it is also the
	// sweep period
	Timeout time.Duration
	// Now returns the current time, tests replace it
	Now func() time.Time
}

// DefaultOptions returns the default cursor options
func DefaultOptions() Options {
	return Options{Timeout: DefaultTimeout, Now: time.Now}
}

// Manager stores the open cursors of one session
type Manager struct {
	opts Options

	mu      sync.Mutex
	streams map[int32]storage.Cursor
	expiry  *util.ExpiryHeap[int32]
	next    int32
	closed  bool

	// sweeper is started with the first stored cursor
	sweeper *time.Ticker
	stop    chan struct{}
}

// NewManager creates an empty manager
func NewManager(opts Options) *Manager {
	return newManagerAt(opts, 0)
}

func newManagerAt(opts Options, start int32) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		opts:    opts,
		streams: make(map[int32]storage.Cursor),
		expiry:  util.NewExpiryHeap[int32](),
		next:    start,
		stop:    make(chan struct{}),
	}
}

// Put stores a stream and returns its cursor id. A stream without remaining
// rows is closed instead and NotStored is returned.
func (m *Manager) Put(stream storage.Cursor) int32 {
	if !stream.HasNext() {
		stream.Close()
		return NotStored
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		stream.Close()
		return NotStored
	}

	id := m.allocate()
	m.streams[id] = stream
	m.expiry.Touch(id, m.opts.Now())
	openCursors.Add(1)

	if m.sweeper == nil {
		m.sweeper = time.NewTicker(m.opts.Timeout)
		go m.sweepLoop(m.sweeper.C)
	}
	return id
}

// allocate returns the next free id. Ids wrap to zero before MaxInt32, ids
// that are still in use are skipped. The caller must hold mu.
func (m *Manager) allocate() int32 {
	for {
		id := m.next
		if m.next >= math.MaxInt32-1 {
			m.next = 0
		} else {
			m.next++
		}
		if _, used := m.streams[id]; !used {
			return id
		}
	}
}

// GetBatch returns up to n rows of the cursor and whether more rows remain.
// A non positive n uses DefaultBatchSize. An exhausted cursor is removed.
func (m *Manager) GetBatch(id int32, n int) ([]schema.Pojo, bool, error) {
	if n <= 0 {
		n = DefaultBatchSize
	}

	m.mu.Lock()
	stream, ok := m.streams[id]
	if ok {
		m.expiry.Touch(id, m.opts.Now())
	}
	m.mu.Unlock()
	if !ok {
		return nil, false, fmt.Errorf("%w: %d", ErrNoSuchCursor, id)
	}

	rows, err := ReadBatch(stream, n)
	if err != nil {
		m.Remove(id)
		return rows, false, err
	}
	hasMore := stream.HasNext()
	if !hasMore {
		m.Remove(id)
	}
	return rows, hasMore, nil
}

// Remove closes and forgets a cursor. It reports whether the cursor existed.
func (m *Manager) Remove(id int32) bool {
	m.mu.Lock()
	stream, ok := m.streams[id]
	if ok {
		delete(m.streams, id)
		m.expiry.Remove(id)
		openCursors.Add(-1)
	}
	m.mu.Unlock()

	if ok {
		if err := stream.Close(); err != nil {
			Logger.Warningf("closing cursor %d failed: %v", id, err)
		}
	}
	return ok
}

// Sweep closes all cursors that were not accessed within the timeout and
// returns how many were closed
func (m *Manager) Sweep() int {
	deadline := m.opts.Now().Add(-m.opts.Timeout)

	m.mu.Lock()
	expired := m.expiry.PopExpired(deadline)
	streams := make([]storage.Cursor, 0, len(expired))
	for _, id := range expired {
		streams = append(streams, m.streams[id])
		delete(m.streams, id)
	}
	openCursors.Add(-int64(len(expired)))
	m.mu.Unlock()

	for i, s := range streams {
		if err := s.Close(); err != nil {
			Logger.Warningf("closing expired cursor %d failed: %v", expired[i], err)
		}
	}
	if len(expired) > 0 {
		Logger.Debugf("swept %d expired cursors", len(expired))
	}
	return len(expired)
}

func (m *Manager) sweepLoop(tick <-chan time.Time) {
	for {
		select {
		case <-tick:
			m.Sweep()
		case <-m.stop:
			return
		}
	}
}

// Len returns the number of stored cursors
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// Close stops the sweeper and closes all cursors. Put on a closed manager
// closes the stream and returns NotStored.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.sweeper != nil {
		m.sweeper.Stop()
	}
	close(m.stop)
	streams := m.streams
	m.streams = make(map[int32]storage.Cursor)
	m.expiry = util.NewExpiryHeap[int32]()
	openCursors.Add(-int64(len(streams)))
	m.mu.Unlock()

	for _, s := range streams {
		s.Close()
	}
}

// ReadBatch reads up to n rows from a stream
func ReadBatch(stream storage.Cursor, n int) ([]schema.Pojo, error) {
	rows := make([]schema.Pojo, 0, min(n, 64))
	for len(rows) < n && stream.HasNext() {
		row, err := stream.Next()
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
