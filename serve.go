// Package pcache provides the main API for running a remote page
// cache server: bootstrap over TCP, one-sided RDMA transport, and a
// persistent log+index pair backing the cached pages.
package pcache

import (
	"context"
	"fmt"
	"sync"

	"github.com/siisee11/pmdfc-go/internal/bootstrap"
	"github.com/siisee11/pmdfc-go/internal/cceh"
	"github.com/siisee11/pmdfc-go/internal/config"
	"github.com/siisee11/pmdfc-go/internal/dispatch"
	"github.com/siisee11/pmdfc-go/internal/logging"
	"github.com/siisee11/pmdfc-go/internal/metaregion"
	"github.com/siisee11/pmdfc-go/internal/pmemlog"
	"github.com/siisee11/pmdfc-go/internal/rdma"
	"github.com/siisee11/pmdfc-go/internal/rdma/softrdma"
	"github.com/siisee11/pmdfc-go/internal/reqqueue"
	"github.com/siisee11/pmdfc-go/internal/staging"
	"github.com/siisee11/pmdfc-go/internal/wire"
)

// Options supplies the collaborators CreateAndServe doesn't know how to build
// itself: logging and metrics observation. Both are optional.
type Options struct {
	Logger   *logging.Logger
	Observer Observer
}

// Server holds every long-lived component wired together by CreateAndServe:
// the three goroutines spec.md §5 names (bootstrap listener,
// completion poller, dispatcher) plus the persistent pools and
// in-memory tables they share.
type Server struct {
	cfg *config.Config

	region   *metaregion.Region
	log      *pmemlog.Log
	index    *cceh.Table
	provider rdma.Provider
	queue    *reqqueue.Queue
	staging  *staging.Table

	listener *bootstrap.Listener
	poller   *rdma.Poller
	disp     *dispatch.Dispatcher

	metrics *Metrics
	cancel  context.CancelFunc
	waitErr *errs
}

// CreateAndServe opens the log and index pools under cfg.MountPath,
// bootstraps the TCP listener, and starts the completion poller and
// dispatcher goroutines. It returns once every component has started;
// call (*Server).Wait to block until those goroutines exit.
//
// The returned Server owns the log and index pool file handles; Close
// releases them.
func CreateAndServe(ctx context.Context, cfg *config.Config, options *Options) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if options == nil {
		options = &Options{}
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Default()
	}

	logPool, err := pmemlog.Open(cfg.MountPath+"/log", int64(cfg.LogSize), logger)
	if err != nil {
		return nil, fmt.Errorf("pcache: open log pool: %w", err)
	}
	// IndexSize is a pool byte budget; the index itself sizes its
	// directory/segments in slot counts, so approximate a slot count
	// from the configured byte budget at one slot per index entry.
	indexSlots := int(cfg.IndexSize) / wire.MetadataSize
	index, err := cceh.Open(cfg.MountPath+"/pmem", indexSlots)
	if err != nil {
		logPool.Close()
		return nil, fmt.Errorf("pcache: open index pool: %w", err)
	}
	// The index, not the log, is the authority on which log bytes are
	// still referenced (see pmemlog.Open's doc comment); restore the
	// log's allocation cursor from it before any write can land, or a
	// post-restart AllocAndPersist would silently overwrite pool offset
	// 0 out from under entries the index still resolves keys to.
	logPool.SetCursor(int64(index.MaxValue()) + wire.PageSize)

	region := metaregion.New()
	provider := softrdma.New()

	listener, err := bootstrap.Listen(cfg.TCPPort, cfg.IBPort, provider, region)
	if err != nil {
		index.Close()
		logPool.Close()
		return nil, fmt.Errorf("pcache: listen: %w", err)
	}

	q := reqqueue.New()
	st := staging.New()
	poller := rdma.NewPoller(provider, q, st)

	metrics := NewMetrics()
	var observer Observer = &MetricsObserver{M: metrics}
	if options.Observer != nil {
		observer = options.Observer
	}
	disp := dispatch.New(q, st, region, logPool, index, provider, observer)

	s := &Server{
		cfg:      cfg,
		region:   region,
		log:      logPool,
		index:    index,
		provider: provider,
		queue:    q,
		staging:  st,
		listener: listener,
		poller:   poller,
		disp:     disp,
		metrics:  metrics,
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.run(runCtx, logger)
	return s, nil
}

// errs keeps the first non-nil error returned by any of the three
// goroutines spec.md §5 names; record logs every one of them.
type errs struct {
	mu  sync.Mutex
	wg  sync.WaitGroup
	err error
}

// record saves the first non-nil error any of the three goroutines
// returns and cancels the rest of the server. Listener, poller, and
// dispatcher all return nil on ordinary ctx cancellation and a non-nil
// error only when they hit something they consider unrecoverable (a
// provider-fatal RDMA completion, an accept error the listener does
// not retry, a provider-fatal reply post) — spec.md §7's "the
// system chooses to die rather than attempt reconnection" policy, so
// any one of them dying takes the rest of the server down with it.
func (e *errs) record(name string, logger *logging.Logger, cancel context.CancelFunc, err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil {
		e.err = fmt.Errorf("pcache: %s: %w", name, err)
	}
	logger.Error("goroutine exited with error, shutting down server", "goroutine", name, "error", err)
	cancel()
}

func (s *Server) run(ctx context.Context, logger *logging.Logger) {
	e := &errs{}
	e.wg.Add(3)

	go func() {
		defer e.wg.Done()
		e.record("bootstrap", logger, s.cancel, s.listener.Run(ctx))
	}()
	go func() {
		defer e.wg.Done()
		e.record("poller", logger, s.cancel, s.poller.Run(ctx))
	}()
	go func() {
		defer e.wg.Done()
		e.record("dispatcher", logger, s.cancel, s.disp.Run(ctx))
	}()

	s.waitErr = e
}

func (e *errs) result() error { return e.err }

// Wait blocks until every server goroutine has returned, then reports
// the first error any of them observed (nil if all returned cleanly,
// which normally only happens after ctx is cancelled).
func (s *Server) Wait() error {
	if s.waitErr == nil {
		return nil
	}
	s.waitErr.wg.Wait()
	return s.waitErr.result()
}

// Done returns a channel that closes once every server goroutine has
// returned, whether because the caller's ctx was cancelled or because
// one of them hit a provider-fatal error and took the rest down with
// it (see (*errs).record). Callers that need to react to an
// unsolicited server death without waiting on an external shutdown
// signal should select on Done alongside their own signal channel.
func (s *Server) Done() <-chan struct{} {
	done := make(chan struct{})
	if s.waitErr == nil {
		close(done)
		return done
	}
	go func() {
		s.waitErr.wg.Wait()
		close(done)
	}()
	return done
}

// Metrics returns the server's metrics instance.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Close releases the server's persistent pool file handles and stops
// accepting new bootstrap connections. It does not cancel a context
// passed to CreateAndServe; callers should cancel that context first
// and call Wait before Close to ensure in-flight requests drain.
func (s *Server) Close() error {
	s.listener.Close()
	s.queue.Close()
	if err := s.index.Close(); err != nil {
		return err
	}
	return s.log.Close()
}
