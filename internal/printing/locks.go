package printing

import (
	"context"
	"strings"
	"sync"
)

// PrinterLocks serializes access to each physical printer. Requests for
// different printers never contend.
type PrinterLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewPrinterLocks creates an empty lock table.
func NewPrinterLocks() *PrinterLocks {
	return &PrinterLocks{slots: make(map[string]chan struct{})}
}

func (l *PrinterLocks) slot(printerID string) chan struct{} {
	key := strings.ToLower(printerID)
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

// Acquire blocks until printerID is free or ctx is done. The returned
// function releases the printer.
func (l *PrinterLocks) Acquire(ctx context.Context, printerID string) (func(), error) {
	s := l.slot(printerID)
	select {
	case s <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-s }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
