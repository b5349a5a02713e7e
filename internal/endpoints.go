// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/youngkin/heyload/api"
)

// EndpointRunner measures each endpoint with a series of sequential
// requests, one endpoint after another.
type EndpointRunner struct {
	Requester Requester
	Endpoints []api.RequestSpec
	// Requests is the number of requests made to each endpoint
	Requests int
}

// Run returns per endpoint results keyed by RequestSpec.Key. If ctx is
// canceled the endpoints measured so far are returned with ctx's error.
func (er *EndpointRunner) Run(ctx context.Context) (map[string]api.EndpointResult, error) {
	results := make(map[string]api.EndpointResult, len(er.Endpoints))
	for _, ep := range er.Endpoints {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		agg := NewAggregate(er.Requests)
		for i := 0; i < er.Requests && ctx.Err() == nil; i++ {
			agg.Record(er.Requester.Dispatch(ctx, ep))
		}

		successes, total := agg.Counts()
		method := ep.Method
		if method == "" {
			method = "GET"
		}
		res := api.EndpointResult{
			Name:        ep.Name,
			Method:      method,
			Path:        ep.Path,
			Requests:    total,
			Errors:      total - successes,
			SuccessRate: SuccessRate(successes, total),
			Latency:     agg.Stats(),
		}
		log.Debug().Str("endpoint", ep.Key()).Int("errors", res.Errors).Msg("EndpointRunner endpoint complete")
		results[ep.Key()] = res
	}
	return results, nil
}
