package mongostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ec-shop/internal/domain"
	"go.mongodb.org/mongo-driver/mongo"
)

// classify wraps err with op and marks connectivity failures as domain.ErrStoreUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if unavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func unavailable(err error) bool {
	return mongo.IsTimeout(err) ||
		mongo.IsNetworkError(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, context.DeadlineExceeded)
}
