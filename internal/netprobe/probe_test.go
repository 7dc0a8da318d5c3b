package netprobe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(v bool) *bool { return &v }

// scriptedSampler replays a fixed sequence of samples, holding the last one
// once the script runs out.
func scriptedSampler(samples ...State) Sampler {
	var mu sync.Mutex
	index := 0
	return func(context.Context) State {
		mu.Lock()
		defer mu.Unlock()
		sample := samples[index]
		if index < len(samples)-1 {
			index++
		}
		return sample
	}
}

func online() State  { return State{IsConnected: true, IsInternetReachable: boolPtr(true)} }
func offline() State { return State{IsConnected: false, IsInternetReachable: boolPtr(false)} }

func TestState_Offline(t *testing.T) {
	assert.False(t, online().Offline())
	assert.True(t, offline().Offline())
	// Undetermined reachability is not a confirmed dead state.
	assert.False(t, State{IsConnected: false}.Offline())
	assert.False(t, State{IsConnected: true, IsInternetReachable: boolPtr(false)}.Offline())
}

func TestProbe_LastBeforeFirstPoll(t *testing.T) {
	probe := New(scriptedSampler(offline()))

	last := probe.Last()

	assert.True(t, last.IsConnected)
	assert.Nil(t, last.IsInternetReachable)
}

func TestProbe_SamplesImmediatelyOnStart(t *testing.T) {
	var mu sync.Mutex
	var seen []State
	probe := New(scriptedSampler(offline()),
		WithInterval(time.Hour),
		WithOnChange(func(s State) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		}))

	stop := probe.Start(context.Background())
	defer stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, time.Millisecond)
	assert.True(t, probe.Last().Offline())
}

func TestProbe_OfflineFiresOncePerTransition(t *testing.T) {
	var mu sync.Mutex
	notices := 0
	polls := 0
	probe := New(scriptedSampler(online(), offline(), offline(), online(), offline()),
		WithInterval(time.Millisecond),
		WithOnChange(func(State) {
			mu.Lock()
			polls++
			mu.Unlock()
		}),
		WithOnOffline(func() {
			mu.Lock()
			notices++
			mu.Unlock()
		}))

	stop := probe.Start(context.Background())
	defer stop()

	// Two transitions into offline across the script; repeated offline
	// samples must not renotify.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return polls >= 6
	}, 2*time.Second, time.Millisecond)
	stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, notices)
}

func TestProbe_StopIsIdempotentAndHalts(t *testing.T) {
	var mu sync.Mutex
	polls := 0
	probe := New(scriptedSampler(online()),
		WithInterval(time.Millisecond),
		WithOnChange(func(State) {
			mu.Lock()
			polls++
			mu.Unlock()
		}))

	stop := probe.Start(context.Background())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return polls >= 1
	}, time.Second, time.Millisecond)

	stop()
	stop()

	mu.Lock()
	after := polls
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, after, polls, "no polls after stop")
}

func TestDialSampler_UnreachableTarget(t *testing.T) {
	sampler := DialSampler("127.0.0.1:1")

	sample := sampler(context.Background())

	assert.False(t, sample.IsConnected)
	require.NotNil(t, sample.IsInternetReachable)
	assert.False(t, *sample.IsInternetReachable)
}
