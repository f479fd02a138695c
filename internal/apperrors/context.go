package apperrors

import "context"

// FromContext classifies a context error. Returns nil when ctx is live.
func FromContext(ctx context.Context) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return Wrap(KindTimeout, "deadline exceeded", ctx.Err())
	default:
		return Wrap(KindCancelled, "request cancelled", ctx.Err())
	}
}
