package features

import (
	"context"

	"rtoshield/internal/models"
)

// Extractor composes the feature vector for one order.
type Extractor interface {
	Extract(ctx context.Context, order *models.Order) (*OrderFeatures, error)
}
