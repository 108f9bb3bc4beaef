package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type counterState struct{ count int }

type counterAction int

const (
	increment counterAction = iota
	decrement
	reset
)

var counterReducer = ReducerFunc[counterState, counterAction, struct{}](func(s counterState, a counterAction, _ struct{}) (counterState, []Effect[counterAction]) {
	switch a {
	case increment:
		s.count++
	case decrement:
		s.count--
	case reset:
		s.count = 0
	}
	return s, nil
})

func TestCounterReducerSequence(t *testing.T) {
	state := counterState{}
	actions := []counterAction{increment, increment, decrement, reset, increment}
	var effects []Effect[counterAction]
	for _, a := range actions {
		state, effects = counterReducer.Reduce(state, a, struct{}{})
		assert.Empty(t, effects)
	}
	assert.Equal(t, 1, state.count)
}
