package statemachine

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type light int

const (
	red light = iota
	green
	yellow
)

func newLight() *StateMachine[light] {
	return NewStateMachine(red, map[light][]light{
		red:    {green},
		green:  {yellow},
		yellow: {red},
	})
}

func TestStateMachine_Transitions(t *testing.T) {
	sm := newLight()
	assert.Equal(t, red, sm.Current())

	require.NoError(t, sm.Transition(green))
	require.NoError(t, sm.Transition(yellow))
	assert.Equal(t, yellow, sm.Current())

	err := sm.Transition(green)
	require.Error(t, err)
	var invalid InvalidTransitionError[light]
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, yellow, invalid.From)
	assert.Equal(t, green, invalid.To)
	assert.Equal(t, yellow, sm.Current(), "failed transition must not change state")
}

func TestStateMachine_Observers(t *testing.T) {
	sm := newLight()

	var seen [][2]light
	sm.OnTransition(func(from, to light) {
		// Observers run outside the lock.
		assert.Equal(t, to, sm.Current())
		seen = append(seen, [2]light{from, to})
	})

	require.NoError(t, sm.Transition(green))
	require.Error(t, sm.Transition(red))
	require.NoError(t, sm.Transition(yellow))

	assert.Equal(t, [][2]light{{red, green}, {green, yellow}}, seen)
}

func TestStateMachine_ConcurrentObserversInOrder(t *testing.T) {
	const (
		off = iota
		on
	)
	sm := NewStateMachine(off, map[int][]int{
		off: {on},
		on:  {off},
	})

	var mtx sync.Mutex
	var seen [][2]int
	sm.OnTransition(func(from, to int) {
		mtx.Lock()
		seen = append(seen, [2]int{from, to})
		mtx.Unlock()
	})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if (g+i)%2 == 0 {
					_, _ = sm.TransitionIf(on, off)
				} else {
					_, _ = sm.TransitionIf(off, on)
				}
			}
		}(g)
	}
	wg.Wait()

	require.NotEmpty(t, seen)
	assert.Equal(t, off, seen[0][0])
	for i := 1; i < len(seen); i++ {
		require.Equal(t, seen[i-1][1], seen[i][0], "notification %d out of order", i)
	}
	assert.Equal(t, seen[len(seen)-1][1], sm.Current())
}

func TestStateMachine_TransitionIf(t *testing.T) {
	sm := newLight()

	ok, err := sm.TransitionIf(yellow, green)
	require.NoError(t, err)
	assert.False(t, ok, "machine is red, guard requires green")
	assert.Equal(t, red, sm.Current())

	ok, err = sm.TransitionIf(green, red, yellow)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, green, sm.Current())

	_, err = sm.TransitionIf(red, green)
	assert.Error(t, err, "green -> red is not an edge")
}

func TestStateMachine_CanTransitionAndEdges(t *testing.T) {
	sm := newLight()
	assert.True(t, sm.CanTransition(green))
	assert.False(t, sm.CanTransition(yellow))

	edges := sm.Edges()
	assert.Len(t, edges, 3)
	assert.Equal(t, []light{green}, edges[red])
}
