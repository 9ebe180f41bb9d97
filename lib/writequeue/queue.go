package writequeue

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dGate/lib/stats"
	"github.com/ValentinKolb/dGate/lib/storage"
	"github.com/ValentinKolb/dGate/lib/util"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("writequeue")

// DefaultDrainTimeout is how long Shutdown waits for queued writes
const DefaultDrainTimeout = 3 * time.Second

var (
	// ErrClosed is returned by Submit after Shutdown was called
	ErrClosed = errors.New("write queue is shut down")
	// ErrDrainTimeout is returned by Shutdown if queued writes were abandoned
	ErrDrainTimeout = errors.New("write queue did not drain in time")
)

var (
	submittedTotal = stats.Counter("dgate_writes_submitted_total")
	appliedTotal   = stats.Counter("dgate_writes_applied_total")
	failuresTotal  = stats.Counter("dgate_write_failures_total")
)

// pendingWrites counts the accepted but not yet applied operations of all queues
var pendingWrites atomic.Int64

func init() {
	stats.Gauge("dgate_writes_pending", func() float64 {
		return float64(pendingWrites.Load())
	})
}

// Options configures a Queue
type Options struct {
	// DrainTimeout bounds the wait for queued writes on shutdown
	DrainTimeout time.Duration
	// OnApplied is called by the worker after every operation, err is nil on success
	OnApplied func(op Op, err error)
}

// DefaultOptions returns the default queue options
func DefaultOptions() Options {
	return Options{DrainTimeout: DefaultDrainTimeout}
}

// Queue applies storage mutations in submission order on a single worker
type Queue struct {
	storage storage.IStorage
	opts    Options
	ops     *util.MPSC[Op]
	worker  chan struct{}

	pending atomic.Int64
	applied atomic.Uint64
	failed  atomic.Uint64

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a queue in front of the storage and starts its worker
func New(s storage.IStorage, opts Options) *Queue {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	q := &Queue{
		storage: s,
		opts:    opts,
		ops:     util.NewMPSC[Op](),
		worker:  make(chan struct{}),
	}
	go q.work()
	return q
}

// Submit queues an operation and returns immediately. The returned error only
// tells whether the operation was accepted, not whether it was persisted.
func (q *Queue) Submit(op Op) error {
	if op.Kind == OpWrite && op.Write == nil {
		return fmt.Errorf("write operation without statement")
	}
	q.pending.Add(1)
	pendingWrites.Add(1)
	if !q.ops.Push(op) {
		q.pending.Add(-1)
		pendingWrites.Add(-1)
		return ErrClosed
	}
	submittedTotal.Inc()
	return nil
}

func (q *Queue) work() {
	defer close(q.worker)
	timer := stats.Timer("writequeue.apply")

	for op := range q.ops.Recv() {
		start := time.Now()
		err := q.applyOne(op)
		timer.UpdateSince(start)

		if err != nil {
			q.failed.Add(1)
			failuresTotal.Inc()
			Logger.Errorf("queued %s failed: %v", op, err)
		} else {
			q.applied.Add(1)
			appliedTotal.Inc()
		}
		q.pending.Add(-1)
		pendingWrites.Add(-1)
		if q.opts.OnApplied != nil {
			q.opts.OnApplied(op, err)
		}
	}
}

// applyOne runs a single operation and turns a panic into an error
func (q *Queue) applyOne(op Op) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op.apply(q.storage)
}

// Shutdown stops accepting operations, waits up to the drain timeout for the
// queued ones and shuts the storage down. Calling it again returns the result
// of the first call.
func (q *Queue) Shutdown() error {
	q.shutdownOnce.Do(func() {
		q.ops.Close()

		var drainErr error
		select {
		case <-q.worker:
			Logger.Infof("write queue drained, %d applied, %d failed", q.applied.Load(), q.failed.Load())
		case <-time.After(q.opts.DrainTimeout):
			drainErr = fmt.Errorf("%w: %d operations pending", ErrDrainTimeout, q.Pending())
			Logger.Warningf("%v", drainErr)
		}

		if err := q.storage.Shutdown(); err != nil {
			Logger.Errorf("storage shutdown failed: %v", err)
			q.shutdownErr = errors.Join(drainErr, err)
			return
		}
		q.shutdownErr = drainErr
	})
	return q.shutdownErr
}

// Pending returns the number of accepted operations that were not applied
// yet, including the one the worker is applying
func (q *Queue) Pending() int {
	return int(q.pending.Load())
}

// Applied returns the number of operations that were applied successfully
func (q *Queue) Applied() uint64 {
	return q.applied.Load()
}

// Failed returns the number of operations that failed
func (q *Queue) Failed() uint64 {
	return q.failed.Load()
}
