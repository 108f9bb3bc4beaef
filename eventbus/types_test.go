package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivedGroupIsOrderIndependent(t *testing.T) {
	a := DerivedGroup([]string{"order-events", "payment-events"})
	b := DerivedGroup([]string{"payment-events", "order-events"})
	assert.Equal(t, a, b)
	assert.Equal(t, "order-events|payment-events", a)
}

func TestDerivedGroupSingleTopic(t *testing.T) {
	assert.Equal(t, "order-events", DerivedGroup([]string{"order-events"}))
}
