package automount

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, s *Shell) Result {
	t.Helper()

	select {
	case res := <-s.Results():
		return res
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no result delivered")
		return Result{}
	}
}

func TestShellDeliversOnceAfterMinBusy(t *testing.T) {
	fx := newFixture(t)
	partition := fx.addPartition("1111-AAAA", "ext4")

	const (
		minBusy  = 80 * time.Millisecond
		cooldown = 150 * time.Millisecond
	)

	shell := NewShell(fx.manager, nil, clock.New(), minBusy, cooldown)

	started := time.Now()
	require.True(t, shell.Submit(context.Background(), Request{Partition: partition, Enable: true}))
	assert.Equal(t, []string{partition}, shell.Busy())

	// Re-entry while in flight does nothing.
	assert.False(t, shell.Submit(context.Background(), Request{Partition: partition, Enable: false}))

	res := receive(t, shell)
	assert.GreaterOrEqual(t, time.Since(started), minBusy)
	assert.Equal(t, OutcomeEnabled, res.Outcome)
	assert.Empty(t, shell.Busy())

	// Still cooling down.
	assert.False(t, shell.Submit(context.Background(), Request{Partition: partition, Enable: false}))

	assert.Eventually(t, func() bool { return !fx.manager.InFlight(partition) }, 5*time.Second, 10*time.Millisecond)

	require.True(t, shell.Submit(context.Background(), Request{Partition: partition, Enable: false}))
	res = receive(t, shell)
	assert.Equal(t, OutcomeDisabled, res.Outcome)

	shell.Wait()

	select {
	case extra := <-shell.Results():
		t.Fatalf("unexpected extra result: %+v", extra)
	default:
	}

	assert.Empty(t, fx.enabled(t))
}

func TestShellIndependentPartitions(t *testing.T) {
	fx := newFixture(t)
	a := fx.addPartition("1111-AAAA", "ext4")
	b := fx.addPartition("2222-BBBB", "vfat")

	shell := NewShell(fx.manager, nil, clock.New(), 0, 0)

	require.True(t, shell.Submit(context.Background(), Request{Partition: a, Enable: true}))
	require.True(t, shell.Submit(context.Background(), Request{Partition: b, Enable: true}))

	got := map[string]Outcome{}
	for range 2 {
		res := receive(t, shell)
		got[res.Partition] = res.Outcome
	}

	assert.Equal(t, map[string]Outcome{a: OutcomeEnabled, b: OutcomeEnabled}, got)
	assert.ElementsMatch(t, []string{a, b}, fx.enabled(t))
}
