package model

import (
	"time"

	"github.com/google/uuid"
)

// Alert reports that the rolling coverage of served intervals dropped
// below the tolerated level.
type Alert struct {
	ID        uuid.UUID `json:"id"`
	Method    string    `json:"method"`
	Coverage  float64   `json:"coverage"`
	Expected  float64   `json:"expected"`
	Window    int       `json:"window"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewAlert(method string, coverage, expected float64, window int) Alert {
	return Alert{
		ID:        uuid.New(),
		Method:    method,
		Coverage:  coverage,
		Expected:  expected,
		Window:    window,
		CreatedAt: time.Now(),
	}
}
