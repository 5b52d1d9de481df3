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

// Package beamnoise adds differentially private noise to reach reports held in
// Apache Beam pipelines.
//
// A report is a PCollection<string,float64> mapping every group to its true
// value. AddNoisePerKey noises every value independently with the same
// mechanism and privacy parameters:
//
//	reach := beamnoise.FromReport(s, report.Report{"facebook": 1200, "tiktok": 430})
//	noisy, err := beamnoise.AddNoisePerKey(s, reach, beamnoise.Params{
//		Mechanism: "laplace",
//		Noise:     &noise.Options{Epsilon: 0.9, Sensitivity: noise.Float64(1)},
//	})
//
// The input is not checked for duplicate keys: a group that appears twice is
// noised twice.
package beamnoise

import (
	"fmt"
	"math"
	"reflect"

	"github.com/apache/beam/sdks/v2/go/pkg/beam"
	"github.com/apache/beam/sdks/v2/go/pkg/beam/register"
	log "github.com/golang/glog"
	"github.com/google/differential-privacy/reachnoise/noise"
	"github.com/google/differential-privacy/reachnoise/rand"
	"github.com/google/differential-privacy/reachnoise/report"
)

func init() {
	beam.RegisterType(reflect.TypeOf((*Group)(nil)).Elem())
	register.DoFn2x3[string, float64, string, float64, error](&addNoiseFn{})
	register.Function1x2[Group, string, float64](groupToKV)
	register.Function2x1[string, float64, Group](kvToGroup)
}

// Params specifies the noise added by AddNoisePerKey.
type Params struct {
	// Mechanism is "laplace" or "gaussian".
	Mechanism string
	// Noise holds the privacy parameters applied to every key. nil uses the
	// defaults of noise.Options.
	Noise *noise.Options
	// Round rounds every noisy value to the nearest integer, ties to even.
	Round bool
}

// AddNoisePerKey noises every value of col, a PCollection<string,float64>, and
// returns a PCollection<string,float64> with the same keys.
//
// The noise parameters are resolved when the pipeline is constructed, so
// invalid parameters are reported here rather than when the pipeline runs.
// Workers draw their noise from rand.NewSecure.
func AddNoisePerKey(s beam.Scope, col beam.PCollection, params Params) (beam.PCollection, error) {
	s = s.Scope("beamnoise.AddNoisePerKey")
	p, err := noise.ResolveOptions(params.Mechanism, params.Noise)
	if err != nil {
		return beam.PCollection{}, fmt.Errorf("beamnoise.AddNoisePerKey: couldn't resolve noise parameters: %w", err)
	}
	return beam.ParDo(s, newAddNoiseFn(p, params.Round), col), nil
}

// addNoiseFn adds noise of a resolved distribution to every value. Only the
// exported fields are serialized to the workers.
type addNoiseFn struct {
	NoiseKind noise.Kind
	Value     float64
	Round     bool

	src rand.Source
}

func newAddNoiseFn(p noise.Params, round bool) *addNoiseFn {
	return &addNoiseFn{NoiseKind: p.Kind, Value: p.Value, Round: round}
}

func (fn *addNoiseFn) Setup() {
	fn.src = rand.NewSecure()
}

func (fn *addNoiseFn) ProcessElement(group string, value float64) (string, float64, error) {
	sample, err := noise.Sample(fn.src, noise.Params{Kind: fn.NoiseKind, Value: fn.Value})
	if err != nil {
		log.Errorf("beamnoise.addNoiseFn.ProcessElement: couldn't noise group %q: %v", group, err)
		return "", 0, fmt.Errorf("couldn't noise group %q: %w", group, err)
	}
	noisy := value + sample
	if fn.Round {
		noisy = math.RoundToEven(noisy)
	}
	return group, noisy, nil
}

// Group is a single (group, value) row of a report, used to move reports in
// and out of pipelines.
type Group struct {
	Group string
	Value float64
}

// FromReport returns the groups of r as a PCollection<string,float64>.
func FromReport(s beam.Scope, r report.Report) beam.PCollection {
	s = s.Scope("beamnoise.FromReport")
	groups := make([]Group, 0, len(r))
	for _, g := range report.Groups(r) {
		groups = append(groups, Group{Group: g, Value: r[g]})
	}
	return beam.ParDo(s, groupToKV, beam.CreateList(s, groups))
}

// ToGroups converts a PCollection<string,float64> into a PCollection<Group>.
func ToGroups(s beam.Scope, col beam.PCollection) beam.PCollection {
	s = s.Scope("beamnoise.ToGroups")
	return beam.ParDo(s, kvToGroup, col)
}

func groupToKV(g Group) (string, float64) {
	return g.Group, g.Value
}

func kvToGroup(group string, value float64) Group {
	return Group{Group: group, Value: value}
}
