package domain

import (
	"context"
	"errors"
	"time"
)

// contentionRetries is how many times a transaction is retried after a lock
// timeout or serialisation failure before the error surfaces as internal.
const contentionRetries = 2

func runInTx(ctx context.Context, tx TxRunner, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = tx.InTx(ctx, fn)
		if err == nil || !errors.Is(err, ErrContention) || attempt >= contentionRetries {
			break
		}
		backoff := time.Duration(attempt+1) * 50 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	if errors.Is(err, ErrContention) {
		return Errorf(ErrInternal, "数据库并发冲突，请重试")
	}
	return err
}
