package async

import "context"

// Op is one independent pending operation joined by All.
type Op[T any] func(ctx context.Context) (T, error)

type indexed[T any] struct {
	i   int
	val T
	err error
}

// All runs ops concurrently and returns their results in input order once
// every op succeeds. The first failure is returned immediately: the shared
// context is cancelled and results that arrive later are discarded.
func All[T any](ctx context.Context, ops ...Op[T]) ([]T, error) {
	out := make([]T, len(ops))
	if len(ops) == 0 {
		return out, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so late finishers never block after All has returned.
	results := make(chan indexed[T], len(ops))
	for i, op := range ops {
		go func(i int, op Op[T]) {
			v, err := op(ctx)
			results <- indexed[T]{i: i, val: v, err: err}
		}(i, op)
	}

	for remaining := len(ops); remaining > 0; remaining-- {
		select {
		case r := <-results:
			if r.err != nil {
				return nil, r.err
			}
			out[r.i] = r.val
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

// Await adapts a Future into an Op.
func Await[T any](f *Future[T]) Op[T] {
	return func(ctx context.Context) (T, error) {
		return f.Wait(ctx)
	}
}
