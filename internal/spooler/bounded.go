package spooler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"
)

// DeviceCalls tracks the goroutines Bounded starts for one job. A call that
// timed out keeps running until the driver returns; Idle reports when every
// such goroutine has exited.
type DeviceCalls struct {
	mu      sync.Mutex
	running int
	idle    chan struct{}
}

// NewDeviceCalls returns an idle tracker.
func NewDeviceCalls() *DeviceCalls {
	idle := make(chan struct{})
	close(idle)
	return &DeviceCalls{idle: idle}
}

func (d *DeviceCalls) start() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running == 0 {
		d.idle = make(chan struct{})
	}
	d.running++
}

func (d *DeviceCalls) finish() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running--
	if d.running == 0 {
		close(d.idle)
	}
}

// Busy reports whether a device goroutine is still running.
func (d *DeviceCalls) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running > 0
}

// Idle is closed once no device goroutine is running.
func (d *DeviceCalls) Idle() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idle
}

type deviceCallsKey struct{}

// WithDeviceCalls attaches d to ctx; Bounded registers its goroutines there.
func WithDeviceCalls(ctx context.Context, d *DeviceCalls) context.Context {
	return context.WithValue(ctx, deviceCallsKey{}, d)
}

func deviceCallsFrom(ctx context.Context) *DeviceCalls {
	d, _ := ctx.Value(deviceCallsKey{}).(*DeviceCalls)
	return d
}

// Bounded runs fn on its own goroutine and waits until it returns, ctx is
// done, or timeout elapses without fn calling progress. On timeout fn keeps
// running and must release its own resources when it eventually returns;
// the DeviceCalls attached to ctx stays busy until then.
func Bounded(ctx context.Context, timeout time.Duration, fn func(progress func()) error) error {
	done := make(chan error, 1)
	beat := make(chan struct{}, 1)
	progress := func() {
		select {
		case beat <- struct{}{}:
		default:
		}
	}

	calls := deviceCallsFrom(ctx)
	calls.start()
	go func() {
		defer calls.finish()
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: panic in device call: %v", ErrDevice, r)
			}
		}()
		done <- fn(progress)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case err := <-done:
			return err
		case <-beat:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)
		case <-timer.C:
			return fmt.Errorf("%w: no progress for %v", ErrDeviceTimeout, timeout)
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrDevice, ctx.Err())
		}
	}
}

var errAbandoned = errors.New("session abandoned")

// guardedPages lets a device goroutine pull pages while allowing the caller
// to detach from it after a timeout. Once detached, Next fails and the
// underlying source is never touched again.
type guardedPages struct {
	mu       sync.Mutex
	src      PageSource
	progress func()
	detached bool
}

func newGuardedPages(src PageSource) *guardedPages {
	return &guardedPages{src: src, progress: func() {}}
}

func (g *guardedPages) Next() (image.Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.detached {
		return nil, errAbandoned
	}
	img, err := g.src.Next()
	g.progress()
	return img, err
}

// detach waits for any in-flight Next and then cuts the source off.
func (g *guardedPages) detach() {
	g.mu.Lock()
	g.detached = true
	g.mu.Unlock()
}
