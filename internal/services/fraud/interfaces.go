package fraud

import (
	"context"

	"rtoshield/internal/models"
)

// Engine scores orders. Close drains the background aggregate updates;
// call it on shutdown after the workers have stopped.
type Engine interface {
	ScoreOrder(ctx context.Context, order *models.Order, tenant *models.Tenant) (*Result, error)
	Close()
}
