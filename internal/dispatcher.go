// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/youngkin/heyload/api"
)

const (
	dialTimeout     = 5 * time.Second
	keepAlive       = 30 * time.Second
	idleConnTimeout = 90 * time.Second
)

// Observer is notified around every dispatch. Implementations must be safe
// for concurrent use.
type Observer interface {
	DispatchStarted()
	DispatchFinished(o Outcome)
}

// Dispatcher issues a single timed request and turns whatever happens into an
// Outcome. There are no retries, one attempt produces one Outcome.
type Dispatcher struct {
	// BaseURL is prepended to each RequestSpec.Path
	BaseURL string
	Client  *http.Client
	// Timeout is used for RequestSpecs that don't specify their own
	Timeout time.Duration
	// Penalty is the latency recorded for dispatches that fail without a
	// response. The dispatch timeout is used when it's zero.
	Penalty  time.Duration
	Observer Observer
}

// NewHTTPClient returns a client whose connection pool is sized for maxConns
// simultaneous requests to a single host. Timeouts are applied per dispatch
// via the request context rather than on the client.
func NewHTTPClient(maxConns int) *http.Client {
	if maxConns <= 0 {
		maxConns = 100
	}
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: keepAlive,
		}).DialContext,
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		IdleConnTimeout:     idleConnTimeout,
		DisableCompression:  false,
		DisableKeepAlives:   false,
	}
	return &http.Client{Transport: t}
}

// NewDispatcher returns a Dispatcher for the target at baseURL.
func NewDispatcher(baseURL string, client *http.Client, timeout, penalty time.Duration, obs Observer) *Dispatcher {
	return &Dispatcher{
		BaseURL:  baseURL,
		Client:   client,
		Timeout:  timeout,
		Penalty:  penalty,
		Observer: obs,
	}
}

// Dispatch sends the request described by spec and waits for the complete
// response. The clock starts immediately before the request is issued and
// stops once the body has been drained or the call fails. Status codes below
// 400 are successes.
func (d *Dispatcher) Dispatch(ctx context.Context, spec api.RequestSpec) Outcome {
	timeout := spec.Timeout.Std()
	if timeout <= 0 {
		timeout = d.Timeout
	}
	penalty := d.Penalty
	if penalty <= 0 {
		penalty = timeout
	}

	if d.Observer != nil {
		d.Observer.DispatchStarted()
	}
	o := d.dispatch(ctx, spec, timeout, penalty)
	if d.Observer != nil {
		d.Observer.DispatchFinished(o)
	}
	return o
}

func (d *Dispatcher) dispatch(ctx context.Context, spec api.RequestSpec, timeout, penalty time.Duration) Outcome {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if spec.Body != "" {
		body = strings.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, JoinURL(d.BaseURL, spec.Path), body)
	if err != nil {
		log.Debug().Err(err).Msg("Dispatcher unable to create http request")
		return failed(ClassRequest, penalty, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := d.Client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", req.URL.String()).Msg("Dispatcher: error sending request")
		return failed(classify(ctx, err), penalty, err)
	}
	_, err = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if err != nil {
		log.Debug().Err(err).Str("url", req.URL.String()).Msg("Dispatcher: error reading response")
		return failed(classify(ctx, err), penalty, err)
	}
	latency := time.Since(start)

	o := Outcome{
		Success:    resp.StatusCode < 400,
		HTTPStatus: resp.StatusCode,
		Latency:    latency,
		HasLatency: true,
	}
	if !o.Success {
		o.Class = ClassHTTPStatus
	}
	return o
}

// failed records a failure with the penalty latency. Dispatches canceled by
// the caller carry no latency so an aborted run doesn't skew its partial
// results.
func failed(class ErrorClass, penalty time.Duration, err error) Outcome {
	if class == ClassCanceled {
		return Outcome{Class: class, Err: err}
	}
	return Outcome{
		Latency:    penalty,
		HasLatency: true,
		Class:      class,
		Err:        err,
	}
}

func classify(ctx context.Context, err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	return ClassConnection
}

// JoinURL appends path to base, ensuring there's exactly one '/' between them.
func JoinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
