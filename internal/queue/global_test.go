package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/AgaveCraft/PlotSquared/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recoverErr(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	fn()
	return nil
}

func TestGlobalQueueReusesCoordinator(t *testing.T) {
	g := NewGlobalQueue(world.NewMemoryStore(), nil)
	defer g.Shutdown(context.Background())

	a := g.Coordinator("alpha")
	assert.Same(t, a, g.Coordinator("alpha"))
	assert.NotSame(t, a, g.Coordinator("beta"))

	stats := g.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "alpha", stats[0].World)
}

func TestSecondWriterIsFatal(t *testing.T) {
	g := NewGlobalQueue(world.NewMemoryStore(), nil)
	defer g.Shutdown(context.Background())

	g.Coordinator("alpha").Start()
	rogue := g.newDetached("alpha")

	err := recoverErr(rogue.Start)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConcurrentAccess))
}

func TestReleaseAllowsNewWriter(t *testing.T) {
	g := NewGlobalQueue(world.NewMemoryStore(), nil)
	defer g.Shutdown(context.Background())

	first := g.Coordinator("alpha")
	require.NoError(t, waitFuture(t, first.Exec("noop", func(*Tx) error { return nil })))
	require.NoError(t, g.Release(context.Background(), "alpha"))

	second := g.Coordinator("alpha")
	assert.NotSame(t, first, second)
	assert.NoError(t, recoverErr(second.Start))
}

func TestWorldsDrainIndependently(t *testing.T) {
	g := NewGlobalQueue(world.NewMemoryStore(), nil)
	defer g.Shutdown(context.Background())

	gate := make(chan struct{})
	blocked := g.Coordinator("slow").Exec("block", func(*Tx) error { <-gate; return nil })
	fast := g.Coordinator("fast").Exec("noop", func(*Tx) error { return nil })

	require.NoError(t, waitFuture(t, fast), "другой мир не ждёт заблокированную очередь")
	close(gate)
	require.NoError(t, waitFuture(t, blocked))
}

func TestShutdownRejectsNewWork(t *testing.T) {
	g := NewGlobalQueue(world.NewMemoryStore(), nil)
	f := g.Coordinator("alpha").Exec("noop", func(*Tx) error { return nil })
	require.NoError(t, g.Shutdown(context.Background()))
	assert.NoError(t, f.Err())

	_, late := g.Coordinator("alpha").Enqueue(Task{Name: "late"})
	assert.ErrorIs(t, late.Err(), ErrStopped)
}
