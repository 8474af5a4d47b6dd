package fio

import (
	"context"
	"io"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retrying wraps an IOManager and retries failed reads and writes with a
// Fibonacci backoff. Short reads at the end of the file are not retried.
type Retrying struct {
	inner   IOManager
	retries uint64
	backoff time.Duration
}

// NewRetrying returns inner wrapped with retries attempts starting at backoff.
// With zero retries inner is returned unchanged.
func NewRetrying(inner IOManager, retries int, backoff time.Duration) IOManager {
	if retries <= 0 {
		return inner
	}
	if backoff <= 0 {
		backoff = 10 * time.Millisecond
	}
	return &Retrying{inner: inner, retries: uint64(retries), backoff: backoff}
}

func (r *Retrying) do(op string, offset int64, fn func() error) error {
	b := retry.WithMaxRetries(r.retries, retry.NewFibonacci(r.backoff))
	return retry.Do(context.Background(), b, func(ctx context.Context) error {
		err := fn()
		if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
			return err
		}
		Logger.Warningf("%s at offset %d failed: %v, will retry", op, offset, err)
		return retry.RetryableError(err)
	})
}

func (r *Retrying) ReadAt(buf []byte, offset int64) (n int, err error) {
	err = r.do("read", offset, func() error {
		n, err = r.inner.ReadAt(buf, offset)
		return err
	})
	return n, err
}

func (r *Retrying) WriteAt(data []byte, offset int64) (n int, err error) {
	err = r.do("write", offset, func() error {
		n, err = r.inner.WriteAt(data, offset)
		return err
	})
	return n, err
}

func (r *Retrying) Size() (int64, error) {
	return r.inner.Size()
}

func (r *Retrying) Sync() error {
	return r.do("sync", 0, r.inner.Sync)
}

func (r *Retrying) Close() error {
	return r.inner.Close()
}
