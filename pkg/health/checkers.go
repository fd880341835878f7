package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when the number of goroutines exceeds threshold.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		count := runtime.NumGoroutine()
		if count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// ClosedCheck fails until done is closed.
func ClosedCheck(done <-chan struct{}, msg string) CheckFunc {
	return func(_ context.Context) error {
		select {
		case <-done:
			return nil
		default:
			return errors.New(msg)
		}
	}
}

// PingCheck adapts a Ping method.
func PingCheck(p interface{ Ping(context.Context) error }) CheckFunc {
	return p.Ping
}
