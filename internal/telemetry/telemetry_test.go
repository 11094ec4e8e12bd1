package telemetry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObserver struct {
	alive    bool
	received [][]byte
	sendErr  error
}

func (o *fakeObserver) Send(payload []byte) error {
	if o.sendErr != nil {
		return o.sendErr
	}
	o.received = append(o.received, payload)
	return nil
}

func (o *fakeObserver) IsAlive() bool { return o.alive }

func marshalJSON(s Snapshot) ([]byte, error) { return json.Marshal(s) }

func newRunningFanout(t *testing.T) *Fanout {
	t.Helper()
	f := NewFanout(marshalJSON, nil, nil)
	go f.Run()
	t.Cleanup(f.Stop)
	return f
}

func TestBroadcastReachesRegisteredObserver(t *testing.T) {
	f := newRunningFanout(t)
	obs := &fakeObserver{alive: true}
	f.Register(obs)

	f.Broadcast(Snapshot{Lifecycle: "RUNNING", Temperature: 500})

	require.Eventually(t, func() bool { return len(obs.received) == 1 }, time.Second, time.Millisecond)
}

func TestDeadObserverIsDroppedWithoutBlockingOthers(t *testing.T) {
	f := newRunningFanout(t)
	dead := &fakeObserver{alive: false}
	alive := &fakeObserver{alive: true}
	f.Register(dead)
	f.Register(alive)

	f.Broadcast(Snapshot{Lifecycle: "RUNNING"})

	require.Eventually(t, func() bool { return len(alive.received) == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.Count() == 1 }, time.Second, time.Millisecond)
}

func TestFailingSendDropsObserverButOthersStillReceive(t *testing.T) {
	f := newRunningFanout(t)
	failing := &fakeObserver{alive: true, sendErr: errors.New("connection reset")}
	ok := &fakeObserver{alive: true}
	f.Register(failing)
	f.Register(ok)

	f.Broadcast(Snapshot{Lifecycle: "RUNNING"})

	require.Eventually(t, func() bool { return len(ok.received) == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.Count() == 1 }, time.Second, time.Millisecond)
}

func TestUnregisterRemovesObserver(t *testing.T) {
	f := newRunningFanout(t)
	obs := &fakeObserver{alive: true}
	f.Register(obs)
	require.Eventually(t, func() bool { return f.Count() == 1 }, time.Second, time.Millisecond)
	f.Unregister(obs)
	require.Eventually(t, func() bool { return f.Count() == 0 }, time.Second, time.Millisecond)
}

func TestGetBacklogReturnsLastSnapshotAndSeries(t *testing.T) {
	f := newRunningFanout(t)
	f.RecordSeriesPoint(BacklogPoint{RuntimeSeconds: 1, Temperature: 100, Target: 100})
	f.Broadcast(Snapshot{Lifecycle: "RUNNING", Temperature: 100})

	require.Eventually(t, func() bool {
		return f.GetBacklog().Snapshot.Lifecycle == "RUNNING"
	}, time.Second, time.Millisecond)

	backlog := f.GetBacklog()
	assert.Len(t, backlog.Series, 1)
}

func TestResetSeriesClearsBacklog(t *testing.T) {
	f := newRunningFanout(t)
	f.RecordSeriesPoint(BacklogPoint{RuntimeSeconds: 1})
	f.ResetSeries()
	assert.Empty(t, f.GetBacklog().Series)
}
