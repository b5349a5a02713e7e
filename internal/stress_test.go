// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youngkin/heyload/api"
)

func TestStressRunner(t *testing.T) {
	fr := &fakeRequester{Delay: 5 * time.Millisecond, FailEvery: 10}
	var progress []StressProgress
	sr := StressRunner{
		Executor:  &Batched{Requester: fr, BatchSize: 20},
		Spec:      api.RequestSpec{Path: "/health"},
		Duration:  100 * time.Millisecond,
		BatchSize: 20,
		OnBatch:   func(sp StressProgress) { progress = append(progress, sp) },
	}

	res := sr.Run(context.Background())

	require.Greater(t, res.Batches, 0)
	assert.Equal(t, res.Batches*20, res.TotalRequests)
	assert.Equal(t, res.TotalRequests, res.Successful+res.Failed)
	assert.Equal(t, int64(res.TotalRequests), fr.Calls())
	assert.GreaterOrEqual(t, res.DurationS, 0.1)
	assert.InDelta(t, 0.1, res.RequestedDurationS, 1e-9)
	assert.InDelta(t, float64(res.TotalRequests)/res.DurationS, res.AvgRPS, 1e-6)
	assert.GreaterOrEqual(t, res.PeakRPS, res.AvgRPS)
	assert.InDelta(t, 90.0, res.SuccessRate, 1e-9)
	require.NotNil(t, res.Latency)
	assert.Equal(t, res.TotalRequests, res.Latency.Count)
	assert.Len(t, res.Sample, res.TotalRequests)

	require.Len(t, progress, res.Batches)
	last := progress[len(progress)-1]
	assert.Equal(t, res.TotalRequests, last.Total)
	assert.Equal(t, res.Batches, last.Batches)
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i].Elapsed, progress[i-1].Elapsed)
	}
}

func TestStressRunnerZeroDuration(t *testing.T) {
	fr := &fakeRequester{}
	sr := StressRunner{
		Executor:  &Batched{Requester: fr, BatchSize: 100},
		Duration:  0,
		BatchSize: 100,
	}

	done := make(chan api.StressResult)
	go func() { done <- sr.Run(context.Background()) }()

	select {
	case res := <-done:
		assert.Equal(t, 0, res.TotalRequests)
		assert.Equal(t, 0, res.Batches)
		assert.GreaterOrEqual(t, res.DurationS, 0.0)
		assert.Equal(t, 0.0, res.AvgRPS)
		assert.Equal(t, 0.0, res.SuccessRate)
		assert.Nil(t, res.Latency)
		assert.Equal(t, int64(0), fr.Calls())
	case <-time.After(5 * time.Second):
		t.Fatal("stress run with a zero duration didn't return")
	}
}

func TestStressRunnerAllFailing(t *testing.T) {
	fr := &fakeRequester{FailEvery: 1}
	sr := StressRunner{
		Executor:  &WorkerPool{Requester: fr},
		Duration:  20 * time.Millisecond,
		BatchSize: 10,
	}
	res := sr.Run(context.Background())

	require.Greater(t, res.TotalRequests, 0)
	assert.Equal(t, 0, res.Successful)
	assert.Equal(t, res.TotalRequests, res.Failed)
	assert.Equal(t, 0.0, res.SuccessRate)
}

func TestStressRunnerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fr := &fakeRequester{Delay: time.Millisecond}
	sr := StressRunner{
		Executor:  &Batched{Requester: fr, BatchSize: 5},
		Duration:  time.Hour,
		BatchSize: 5,
		OnBatch: func(sp StressProgress) {
			if sp.Batches == 3 {
				cancel()
			}
		},
	}
	res := sr.Run(ctx)

	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 15, res.TotalRequests)
}
