package main

import (
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalRouterDispatch(t *testing.T) {
	router := newSignalRouter()
	msg := snowflake.ID(500)
	user := snowflake.ID(1)

	w := router.register(msg, []string{"✅"}, []snowflake.ID{user})
	defer router.unregister(w)

	router.Dispatch(msg, Signal{User: user, Control: "✅"})

	select {
	case sig := <-w.ch:
		assert.Equal(t, user, sig.User)
		assert.Equal(t, "✅", sig.Control)
	default:
		t.Fatal("expected a delivered signal")
	}
}

func TestSignalRouterFiltersUserAndControl(t *testing.T) {
	router := newSignalRouter()
	msg := snowflake.ID(500)

	w := router.register(msg, []string{"✅"}, []snowflake.ID{1})
	defer router.unregister(w)

	// Wrong user, wrong control, wrong message: all ignored.
	router.Dispatch(msg, Signal{User: 2, Control: "✅"})
	router.Dispatch(msg, Signal{User: 1, Control: "❌"})
	router.Dispatch(snowflake.ID(501), Signal{User: 1, Control: "✅"})

	select {
	case <-w.ch:
		t.Fatal("no signal should have been delivered")
	default:
	}
}

// Two players race to claim; the waiter's single-slot buffer keeps only the
// first reaction, which is what makes the claim first-responder-wins.
func TestSignalRouterFirstSignalWins(t *testing.T) {
	router := newSignalRouter()
	msg := snowflake.ID(500)
	p1, p2 := snowflake.ID(1), snowflake.ID(2)

	w := router.register(msg, []string{"✅"}, []snowflake.ID{p1, p2})
	defer router.unregister(w)

	router.Dispatch(msg, Signal{User: p2, Control: "✅"})
	router.Dispatch(msg, Signal{User: p1, Control: "✅"})

	select {
	case sig := <-w.ch:
		assert.Equal(t, p2, sig.User)
	default:
		t.Fatal("expected a delivered signal")
	}

	select {
	case <-w.ch:
		t.Fatal("second signal should have been dropped")
	default:
	}
}

func TestSignalRouterMultipleWaiters(t *testing.T) {
	router := newSignalRouter()
	msg := snowflake.ID(500)
	p1, p2 := snowflake.ID(1), snowflake.ID(2)

	// The both-ready stage registers one waiter per player on one message.
	w1 := router.register(msg, []string{"✅"}, []snowflake.ID{p1})
	w2 := router.register(msg, []string{"✅"}, []snowflake.ID{p2})

	router.Dispatch(msg, Signal{User: p1, Control: "✅"})
	router.Dispatch(msg, Signal{User: p2, Control: "✅"})

	require.Len(t, w1.ch, 1)
	require.Len(t, w2.ch, 1)
	assert.Equal(t, p1, (<-w1.ch).User)
	assert.Equal(t, p2, (<-w2.ch).User)

	router.unregister(w1)
	router.unregister(w2)

	// After unregistering, dispatch reaches nobody.
	router.Dispatch(msg, Signal{User: p1, Control: "✅"})
	assert.Empty(t, w1.ch)
}

func TestSignalRouterUnregisterCleansUp(t *testing.T) {
	router := newSignalRouter()
	msg := snowflake.ID(500)

	w1 := router.register(msg, []string{"✅"}, []snowflake.ID{1})
	w2 := router.register(msg, []string{"✅"}, []snowflake.ID{2})

	router.unregister(w1)
	router.unregister(w1) // double unregister is harmless

	router.mu.Lock()
	remaining := len(router.waiters[msg])
	router.mu.Unlock()
	assert.Equal(t, 1, remaining)

	router.unregister(w2)

	router.mu.Lock()
	_, exists := router.waiters[msg]
	router.mu.Unlock()
	assert.False(t, exists, "empty waiter list should be deleted")
}
