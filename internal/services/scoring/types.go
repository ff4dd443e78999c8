package scoring

import "time"

// Job is one queued scoring request.
type Job struct {
	OrderID    uint      `json:"order_id"`
	TenantID   uint      `json:"tenant_id"`
	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// DeadLetter is an exhausted job parked for operator review.
type DeadLetter struct {
	Job      Job       `json:"job"`
	Reason   string    `json:"reason"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}
