//
// Copyright 2020 Google LLC
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

package noise

import (
	"errors"
	"math"
	"testing"

	"github.com/google/differential-privacy/reachnoise/rand"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/grd/stat"
)

func classicSigma(sensitivity, epsilon, delta float64) float64 {
	return sensitivity * math.Sqrt(2*math.Log(1.25/delta)) / epsilon
}

func TestGaussianResolve(t *testing.T) {
	for _, tc := range []struct {
		desc        string
		budget      Budget
		sensitivity float64
		override    float64
		want        Params
		wantErr     bool
	}{
		{"classic sigma",
			Budget{Epsilon: 1, Delta: 1e-5}, 1, 0,
			GaussianParams(classicSigma(1, 1, 1e-5)), false},
		{"sigma scales with sensitivity",
			Budget{Epsilon: 0.5, Delta: 1e-3}, 4, 0,
			GaussianParams(classicSigma(4, 0.5, 1e-3)), false},
		{"zero sensitivity",
			Budget{Epsilon: 1, Delta: 1e-5}, 0, 0,
			GaussianParams(0), false},
		{"override takes precedence",
			Budget{Epsilon: 1, Delta: 1e-5}, 1, 2.5,
			GaussianParams(2.5), false},
		{"override ignores an invalid delta",
			Budget{Epsilon: 1, Delta: 2}, 1, 2.5,
			GaussianParams(2.5), false},
		{"zero delta",
			Budget{Epsilon: 1, Delta: 0}, 1, 0,
			Params{}, true},
		{"delta of 1",
			Budget{Epsilon: 1, Delta: 1}, 1, 0,
			Params{}, true},
		{"negative delta",
			Budget{Epsilon: 1, Delta: -1e-5}, 1, 0,
			Params{}, true},
		{"zero epsilon",
			Budget{Epsilon: 0, Delta: 1e-5}, 1, 0,
			Params{}, true},
		{"infinite epsilon",
			Budget{Epsilon: math.Inf(1), Delta: 1e-5}, 1, 0,
			Params{}, true},
		{"infinite sensitivity",
			Budget{Epsilon: 1, Delta: 1e-5}, math.Inf(1), 0,
			Params{}, true},
		{"NaN override",
			Budget{Epsilon: 1, Delta: 1e-5}, 1, math.NaN(),
			Params{}, true},
	} {
		got, err := gauss.Resolve(tc.budget, tc.sensitivity, tc.override)
		if (err != nil) != tc.wantErr {
			t.Errorf("Resolve: when %s for err got %v, want %t", tc.desc, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("Resolve: when %s got err %v, want ErrInvalidParameter", tc.desc, err)
		}
		if got != tc.want {
			t.Errorf("Resolve: when %s got %+v, want %+v", tc.desc, got, tc.want)
		}
	}
}

func TestGaussianSigmaIsMonotone(t *testing.T) {
	sigma := func(epsilon, delta float64) float64 {
		p, err := gauss.Resolve(Budget{Epsilon: epsilon, Delta: delta}, 1, 0)
		if err != nil {
			t.Fatalf("Resolve(epsilon %f, delta %e): got err %v", epsilon, delta, err)
		}
		return p.Sigma()
	}
	epsilons := []float64{0.01, 0.1, 0.5, 1, 2, 10}
	for i := 1; i < len(epsilons); i++ {
		if lo, hi := sigma(epsilons[i], 1e-5), sigma(epsilons[i-1], 1e-5); lo >= hi {
			t.Errorf("sigma(epsilon %f) = %f, want less than sigma(epsilon %f) = %f", epsilons[i], lo, epsilons[i-1], hi)
		}
	}
	deltas := []float64{1e-12, 1e-9, 1e-5, 1e-3, 0.1, 0.5}
	for i := 1; i < len(deltas); i++ {
		if lo, hi := sigma(1, deltas[i]), sigma(1, deltas[i-1]); lo >= hi {
			t.Errorf("sigma(delta %e) = %f, want less than sigma(delta %e) = %f", deltas[i], lo, deltas[i-1], hi)
		}
	}
}

func TestGaussianStatistics(t *testing.T) {
	const numberOfSamples = 125000
	for _, tc := range []struct {
		opt      *Options
		mean     float64
		variance float64
	}{
		{
			opt:      &Options{Epsilon: 1, Delta: 1e-5, Sensitivity: Float64(1)},
			mean:     0,
			variance: 2 * math.Log(125000),
		},
		{
			opt:      &Options{Epsilon: ln3, Delta: 1e-10, Sensitivity: Float64(1)},
			mean:     45941223.02107,
			variance: math.Pow(classicSigma(1, ln3, 1e-10), 2),
		},
		{
			opt:      &Options{Epsilon: 0.5, Delta: 0.01, Sensitivity: Float64(3)},
			mean:     -12,
			variance: math.Pow(classicSigma(3, 0.5, 0.01), 2),
		},
		{
			opt:      &Options{Sigma: Float64(4)},
			mean:     0,
			variance: 16,
		},
	} {
		src := rand.NewSeeded(int64(tc.variance))
		noisedSamples := make(stat.Float64Slice, numberOfSamples)
		for i := 0; i < numberOfSamples; i++ {
			var err error
			noisedSamples[i], err = gauss.AddNoise(src, tc.mean, tc.opt)
			if err != nil {
				t.Fatalf("Couldn't noise samples: %v", err)
			}
		}
		sampleMean, sampleVariance := stat.Mean(noisedSamples), stat.Variance(noisedSamples)
		// Assuming that the Gaussian samples have a mean of 0 and the specified variance of tc.variance,
		// sampleMean is normally distributed with a mean of 0 and standard deviation
		// of sqrt(tc.variance / numberOfSamples).
		//
		// The meanErrorTolerance is set to the 99.9995% quantile of the anticipated distribution. Thus,
		// the test falsely rejects with a probability of 10⁻⁵.
		meanErrorTolerance := 4.41717 * math.Sqrt(tc.variance/float64(numberOfSamples))
		// Assuming that the Gaussian samples have the specified variance of tc.variance, sampleVariance
		// is approximately Gaussian distributed with a mean of tc.variance and a
		// standard deviation of sqrt(2) * tc.variance / sqrt(numberOfSamples).
		//
		// The varianceErrorTolerance is set to the 99.9995% quantile of the anticipated distribution. Thus,
		// the test falsely rejects with a probability of 10⁻⁵.
		varianceErrorTolerance := 4.41717 * math.Sqrt2 * tc.variance / math.Sqrt(float64(numberOfSamples))

		if !nearEqual(sampleMean, tc.mean, meanErrorTolerance) {
			t.Errorf("got mean = %f, want %f (options %+v)", sampleMean, tc.mean, tc.opt)
		}
		if !nearEqual(sampleVariance, tc.variance, varianceErrorTolerance) {
			t.Errorf("got variance = %f, want %f (options %+v)", sampleVariance, tc.variance, tc.opt)
		}
	}
}

func TestGaussianSampleBoxMuller(t *testing.T) {
	// -2·ln(e^-0.5) = 1, so the radius of this draw is exactly 1.
	unitRadius := math.Exp(-0.5)
	for _, tc := range []struct {
		desc  string
		draws []float64
		sigma float64
		want  float64
	}{
		{"angle 0",
			[]float64{unitRadius, 0}, 3,
			3},
		{"half turn",
			[]float64{unitRadius, 0.5}, 3,
			-3},
		{"quarter turn",
			[]float64{unitRadius, 0.25}, 3,
			0},
		{"radius draw of 1 has no noise",
			[]float64{1, 0.1}, 3,
			0},
		{"zero sigma",
			[]float64{0.2, 0.1}, 0,
			0},
		{"radius draw of 0 is redrawn",
			[]float64{0, 0.3, unitRadius, 0}, 2,
			2},
		{"NaN angle is redrawn",
			[]float64{unitRadius, math.NaN(), unitRadius, 0.5}, 2,
			-2},
	} {
		got, err := gauss.Sample(newSequence(tc.draws...), GaussianParams(tc.sigma))
		if err != nil {
			t.Fatalf("Sample: when %s got err %v", tc.desc, err)
		}
		if !cmp.Equal(got, tc.want, cmpopts.EquateApprox(0, 1e-12)) {
			t.Errorf("Sample: when %s got %v, want %v", tc.desc, got, tc.want)
		}
	}
}

func TestGaussianSampleDegenerateSource(t *testing.T) {
	for _, draws := range [][]float64{{0}, {-1}, {math.NaN()}} {
		src := newSequence(draws...)
		if got, err := gauss.Sample(src, GaussianParams(1)); !errors.Is(err, ErrNumericDegeneracy) {
			t.Errorf("Sample: with draws %v got (%v, %v), want ErrNumericDegeneracy", draws, got, err)
		}
		if want := 2 * MaxDrawAttempts; src.next != want {
			t.Errorf("Sample: with draws %v consumed %d draws, want %d", draws, src.next, want)
		}
	}
}

func TestGaussianSampleInvalidParams(t *testing.T) {
	src := rand.NewSeeded(1)
	for _, sigma := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := gauss.Sample(src, GaussianParams(sigma)); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("Sample(GaussianParams(%v)): got err %v, want ErrInvalidParameter", sigma, err)
		}
	}
}

func TestAnalyticCalibration(t *testing.T) {
	for _, tc := range []struct {
		epsilon, delta, sensitivity float64
	}{
		{1, 1e-5, 1},
		{0.1, 1e-5, 1},
		{ln3, 1e-10, 2.5},
		{5, 1e-3, 1},
		{1e-3, 0.1, 10},
	} {
		c := AnalyticCalibration{}
		b := Budget{Epsilon: tc.epsilon, Delta: tc.delta}
		sigma := c.Sigma(b, tc.sensitivity)
		// The returned sigma satisfies the budget, and sigma shrunk by the
		// accuracy of the search does not.
		if got := deltaForGaussian(sigma, tc.sensitivity, tc.epsilon); got > tc.delta {
			t.Errorf("deltaForGaussian(%f, %f, %f) = %e, want at most %e", sigma, tc.sensitivity, tc.epsilon, got, tc.delta)
		}
		tighter := sigma / (1 + 2*defaultSigmaAccuracy)
		if got := deltaForGaussian(tighter, tc.sensitivity, tc.epsilon); got <= tc.delta {
			t.Errorf("deltaForGaussian(%f, %f, %f) = %e, want more than %e", tighter, tc.sensitivity, tc.epsilon, got, tc.delta)
		}
		// The bound is tight for ε ≤ 1, where the classic bound holds.
		if tc.epsilon <= 1 {
			if classic := (ClassicCalibration{}).Sigma(b, tc.sensitivity); sigma >= classic {
				t.Errorf("AnalyticCalibration.Sigma(%+v, %f) = %f, want less than classic %f", b, tc.sensitivity, sigma, classic)
			}
		}
	}
	if got := (AnalyticCalibration{}).Sigma(Budget{Epsilon: 1, Delta: 1e-5}, 0); got != 0 {
		t.Errorf("AnalyticCalibration.Sigma with zero sensitivity: got %f, want 0", got)
	}
}

func TestDeltaForGaussian(t *testing.T) {
	for _, tc := range []struct {
		desc                        string
		sigma, sensitivity, epsilon float64
		want                        float64
	}{
		// Values computed with the closed form of Balle and Wang, Theorem 8.
		{"unit sigma", 1, 1, 1, 0.12693673750664397},
		{"wide sigma", 10, 1, 1, 0},
		{"infinite epsilon", 1, 1, math.Inf(1), 0},
		{"zero sensitivity", 1, 0, 1, 0},
	} {
		got := deltaForGaussian(tc.sigma, tc.sensitivity, tc.epsilon)
		if !cmp.Equal(got, tc.want, cmpopts.EquateApprox(1e-6, 1e-12)) {
			t.Errorf("deltaForGaussian: for %s got %e, want %e", tc.desc, got, tc.want)
		}
	}
}

func TestAddNoiseWithCalibration(t *testing.T) {
	opt := &Options{Epsilon: 1, Delta: 1e-5, Sensitivity: Float64(1), Calibration: AnalyticCalibration{}}
	want, err := GaussianWithCalibration(AnalyticCalibration{}).Resolve(Budget{Epsilon: 1, Delta: 1e-5}, 1, 0)
	if err != nil {
		t.Fatalf("Resolve: got err %v", err)
	}
	withCalibration, withNoise := rand.NewSeeded(5), rand.NewSeeded(5)
	for i := 0; i < 100; i++ {
		got, err := AddNoise(withCalibration, 0, "gaussian", opt)
		if err != nil {
			t.Fatalf("AddNoise with AnalyticCalibration: got err %v", err)
		}
		sample, err := Sample(withNoise, want)
		if err != nil {
			t.Fatalf("Sample(%+v): got err %v", want, err)
		}
		if got != sample {
			t.Fatalf("AddNoise with AnalyticCalibration: got %f, want %f", got, sample)
		}
	}
	// Laplace noise has no calibration.
	if _, err := AddNoise(rand.NewSeeded(5), 0, "laplace", opt); err != nil {
		t.Errorf("AddNoise(laplace) with a Calibration: got err %v", err)
	}
}

func TestGaussianConfidenceInterval(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		noisedX float64
		p       Params
		alpha   float64
		want    ConfidenceInterval
	}{
		{"unit sigma, 95% confidence",
			0, GaussianParams(1), 0.05,
			ConfidenceInterval{LowerBound: -1.959963984540054, UpperBound: 1.959963984540054}},
		{"sigma 2, 99% confidence",
			1200, GaussianParams(2), 0.01,
			ConfidenceInterval{LowerBound: 1200 - 2*2.5758293035489004, UpperBound: 1200 + 2*2.5758293035489004}},
		{"zero sigma",
			7, GaussianParams(0), 0.05,
			ConfidenceInterval{LowerBound: 7, UpperBound: 7}},
	} {
		got, err := gauss.ConfidenceInterval(tc.noisedX, tc.p, tc.alpha)
		if err != nil {
			t.Fatalf("ConfidenceInterval: when %s got err %v", tc.desc, err)
		}
		if diff := cmp.Diff(tc.want, got, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
			t.Errorf("ConfidenceInterval: when %s got diff (-want +got):\n%s", tc.desc, diff)
		}
	}
	if _, err := gauss.ConfidenceInterval(0, GaussianParams(1), 1.5); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("ConfidenceInterval(alpha 1.5): got err %v, want ErrInvalidParameter", err)
	}
}
