// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jllopis/canvasrelay/pkg/errors"
)

// WithTimeout runs fn under a deadline derived from ctx.
// A zero duration runs fn with ctx unchanged. When the deadline fires the
// returned error is a CodeTimeout RelayError naming the operation; fn is
// expected to honor the context it receives.
func WithTimeout[T any](ctx context.Context, operation string, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	result, err := fn(ctx)
	if err != nil && stderrors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, errors.CodeTimeout) {
		var zero T
		return zero, errors.NewTimeout(operation, err).
			WithContext("timeout", d.String())
	}
	return result, err
}
