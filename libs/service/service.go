package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/weaveledger/weaveledger/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when somebody tries to stop an already
	// stopped service.
	ErrAlreadyStopped = errors.New("already stopped")
	// ErrNotStarted is returned when somebody tries to stop a not running
	// service.
	ErrNotStarted = errors.New("not started")
)

// Service defines a service that can be started and stopped. A service runs
// until its context terminates or Stop is called, whichever comes first.
type Service interface {
	// Start is called to start the service. If the service is already
	// running, Start must report an error.
	Start(context.Context) error

	// Return true if the service is running.
	IsRunning() bool

	// String representation of the service.
	String() string

	// Wait blocks until the service is stopped.
	Wait()
}

// Implementation describes the implementation that the BaseService wraps.
type Implementation interface {
	Service

	// Called by the service's Start method.
	OnStart(context.Context) error

	// Called when the service stops, either explicitly or because its
	// context was canceled.
	OnStop()
}

// BaseService provides the started/stopped bookkeeping shared by all
// services. Implementations embed it and override OnStart/OnStop.
//
// OnStart and OnStop are guaranteed to be called at most once. A service
// whose work completes on its own may call Stop on itself to reach the
// terminal state; Stop is safe to call from the service's own goroutine.
// The caller must ensure that Start and Stop are not called concurrently.
type BaseService struct {
	logger  log.Logger
	name    string
	started uint32 // atomic
	stopped uint32 // atomic
	quit    chan struct{}

	// The "subclass" of BaseService
	impl Implementation
}

// NewBaseService creates a new BaseService.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	return &BaseService{
		logger: logger,
		name:   name,
		quit:   make(chan struct{}),
		impl:   impl,
	}
}

// Start starts the Service and calls its OnStart method. An error is
// returned if the service is already running or stopped.
func (bs *BaseService) Start(ctx context.Context) error {
	if atomic.CompareAndSwapUint32(&bs.started, 0, 1) {
		if atomic.LoadUint32(&bs.stopped) == 1 {
			bs.logger.Error("not starting service; already stopped", "service", bs.name)
			atomic.StoreUint32(&bs.started, 0)
			return ErrAlreadyStopped
		}

		bs.logger.Info("starting service", "service", bs.name)

		if err := bs.impl.OnStart(ctx); err != nil {
			atomic.StoreUint32(&bs.started, 0)
			return err
		}

		go func() {
			select {
			case <-bs.quit:
				// the service stopped on its own or via Stop
				return
			case <-ctx.Done():
				if !bs.impl.IsRunning() {
					return
				}

				if err := bs.Stop(); err != nil {
					bs.logger.Error("error stopping service on context cancel",
						"service", bs.name,
						"err", err.Error())
				}
			}
		}()

		return nil
	}

	return ErrAlreadyStarted
}

// Stop implements Service by calling OnStop (if defined) and closing the
// quit channel. An error is returned if the service is already stopped.
func (bs *BaseService) Stop() error {
	if atomic.CompareAndSwapUint32(&bs.stopped, 0, 1) {
		if atomic.LoadUint32(&bs.started) == 0 {
			bs.logger.Error("not stopping service; not started yet", "service", bs.name)
			atomic.StoreUint32(&bs.stopped, 0)
			return ErrNotStarted
		}

		bs.logger.Info("stopping service", "service", bs.name)
		bs.impl.OnStop()
		close(bs.quit)

		return nil
	}

	return ErrAlreadyStopped
}

// IsRunning implements Service by returning true or false depending on the
// service's state.
func (bs *BaseService) IsRunning() bool {
	return atomic.LoadUint32(&bs.started) == 1 && atomic.LoadUint32(&bs.stopped) == 0
}

// Wait blocks until the service is stopped.
func (bs *BaseService) Wait() { <-bs.quit }

// String implements Service by returning a string representation of the
// service.
func (bs *BaseService) String() string { return bs.name }
