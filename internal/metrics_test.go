// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserver(t *testing.T) {
	m := NewMetrics()

	m.DispatchStarted()
	m.DispatchStarted()
	m.DispatchStarted()
	assert.Equal(t, 3.0, testutil.ToFloat64(m.inFlight))

	m.DispatchFinished(Outcome{Success: true, HTTPStatus: 200, Latency: 10 * time.Millisecond, HasLatency: true})
	m.DispatchFinished(Outcome{Class: ClassTimeout, Latency: time.Second, HasLatency: true})
	m.DispatchFinished(Outcome{Class: ClassHTTPStatus, HTTPStatus: 500, Latency: 5 * time.Millisecond, HasLatency: true})

	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("http_status")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.dispatches))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.DispatchStarted()
	m.DispatchFinished(Outcome{Success: true, Latency: time.Millisecond, HasLatency: true})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `heyload_dispatches_total{result="success"} 1`)
	assert.Contains(t, string(body), "heyload_dispatch_latency_seconds_count 1")
	assert.Contains(t, string(body), "heyload_dispatches_in_flight 0")
	assert.Contains(t, string(body), "go_goroutines")
}
