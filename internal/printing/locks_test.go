package printing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrinterLocksExclusivePerPrinter(t *testing.T) {
	locks := NewPrinterLocks()

	release, err := locks.Acquire(context.Background(), "Zebra")
	require.NoError(t, err)

	// Same printer, different casing: must wait.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Acquire(ctx, "ZEBRA")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Another printer is independent.
	other, err := locks.Acquire(context.Background(), "Laser")
	require.NoError(t, err)
	other()

	release()
	release() // second call is a no-op

	again, err := locks.Acquire(context.Background(), "zebra")
	require.NoError(t, err)
	again()
}

func TestPrinterLocksHandoff(t *testing.T) {
	locks := NewPrinterLocks()
	release, err := locks.Acquire(context.Background(), "P")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := locks.Acquire(context.Background(), "P")
		if err == nil {
			close(acquired)
			r()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired while the first still held the printer")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter was not handed the printer")
	}
}
