package port

import "context"

type CacheRepository interface {
	// SetIdempotency claims a key, returns false if it was already claimed
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a claim so a failed request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error

	// SetStock mirrors the committed stock level of a product
	SetStock(ctx context.Context, productID string, quantity int) error

	// GetStock reads the mirrored stock level, ok is false when nothing is cached
	GetStock(ctx context.Context, productID string) (quantity int, ok bool, err error)

	// EvictStock drops the mirrored level of a product
	EvictStock(ctx context.Context, productID string) error
}
