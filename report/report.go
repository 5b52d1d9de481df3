//
// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package report adds differentially private noise to every group of a reach
// report, such as the unique reach of a campaign per platform or demographic.
package report

import (
	"context"
	"fmt"
	"math"
	"sort"

	log "github.com/golang/glog"
	"github.com/google/differential-privacy/reachnoise/checks"
	"github.com/google/differential-privacy/reachnoise/noise"
	"github.com/google/differential-privacy/reachnoise/rand"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism is the number of groups noised concurrently when
// Options.Parallelism is unset.
const DefaultParallelism = 4

// Report maps a group name to the true value of its statistic.
type Report map[string]float64

// Options configure Noise.
type Options struct {
	// Mechanism is "laplace" or "gaussian".
	Mechanism string
	// Noise holds the privacy parameters applied to every group. nil uses the
	// defaults of noise.Options.
	Noise *noise.Options
	// Round rounds every noisy value to the nearest integer, ties to even.
	// Rounding is post-processing and does not affect the privacy guarantee.
	Round bool
	// Parallelism bounds the number of groups noised concurrently. Defaults to
	// DefaultParallelism.
	Parallelism int
}

func (o *Options) parallelism() int {
	if o.Parallelism == 0 {
		return DefaultParallelism
	}
	return o.Parallelism
}

// Groups returns the group names of r in ascending order.
func Groups(r Report) []string {
	groups := make([]string, 0, len(r))
	for g := range r {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Noise returns a new Report with the same groups as r, each holding its true
// value plus independently drawn noise. r is not modified.
//
// Every group is noised with the same mechanism and privacy parameters, so a
// report whose groups overlap in individuals consumes the budget once per
// group. The first error cancels the remaining groups and is returned along
// with a nil Report.
func Noise(ctx context.Context, src rand.Source, r Report, opt *Options) (Report, error) {
	if opt == nil {
		opt = &Options{}
	}
	params, err := noise.ResolveOptions(opt.Mechanism, opt.Noise)
	if err != nil {
		return nil, err
	}
	parallelism := opt.parallelism()
	if err := checks.CheckParallelism(parallelism); err != nil {
		return nil, fmt.Errorf("%w: %v", noise.ErrInvalidParameter, err)
	}

	groups := Groups(r)
	noisy := make([]float64, len(groups))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sample, err := noise.Sample(src, params)
			if err != nil {
				return fmt.Errorf("couldn't noise group %q: %w", group, err)
			}
			v := r[group] + sample
			if opt.Round {
				v = math.RoundToEven(v)
			}
			noisy[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.V(1).Infof("Noised %d groups with %v noise", len(groups), params.Kind)
	out := make(Report, len(groups))
	for i, group := range groups {
		out[group] = noisy[i]
	}
	return out, nil
}
