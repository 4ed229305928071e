package internal

import (
	"context"
	"io"
)

// Repository stores opaque objects (run records, exports) under a key.
type Repository interface {
	Write(ctx context.Context, key string, reader io.Reader) error
}
