package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bakery-system/internal/database/models"
)

func TestOrderOpen(t *testing.T) {
	// PROCESSING is the only mutable state: updates, cancellation, and
	// settlement are all gated on it, so cancelling twice or cancelling a
	// completed order is rejected.
	assert.True(t, orderOpen(models.OrderStatusProcessing))
	assert.False(t, orderOpen(models.OrderStatusCompleted))
	assert.False(t, orderOpen(models.OrderStatusCancelled))
	assert.False(t, orderOpen(""))
}
