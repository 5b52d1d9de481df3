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
	"fmt"
	"math"

	log "github.com/golang/glog"
	"github.com/google/differential-privacy/reachnoise/rand"
)

type laplace struct{}

// Laplace returns a Noise instance that adds Laplace noise to its input. The
// noise has scale λ = sensitivity / ε and achieves ε-differential privacy.
// Delta is ignored.
//
// Samples are drawn by inverse transform sampling from a single uniform draw.
// Unlike the geometric sampling of production libraries, this is not hardened
// against leaks due to artifacts of floating point arithmetic.
func Laplace() Noise {
	return laplace{}
}

// Resolve returns the Laplace scale λ = sensitivity / ε, or the override if it
// is non-zero.
func (laplace) Resolve(b Budget, sensitivity, override float64) (Params, error) {
	if override != 0 {
		if err := checkOverride(override, "Scale"); err != nil {
			return Params{}, err
		}
		return LaplaceParams(override), nil
	}
	if err := checkBudget(b, sensitivity); err != nil {
		return Params{}, err
	}
	return LaplaceParams(laplaceLambda(sensitivity, b.Epsilon)), nil
}

// Sample draws Laplace noise of scale p.Scale() from src.
func (laplace) Sample(src rand.Source, p Params) (float64, error) {
	if err := checkSource(src); err != nil {
		return 0, err
	}
	if err := checkKind(p, LaplaceNoise); err != nil {
		return 0, err
	}
	return sampleLaplace(src, p.Value)
}

// AddNoise adds Laplace noise to the specified float64 x so that the output is
// ε-differentially private given the sensitivity of the statistic.
func (l laplace) AddNoise(src rand.Source, x float64, opt *Options) (float64, error) {
	if err := checkSource(src); err != nil {
		return 0, err
	}
	p, err := opt.resolve(l)
	if err != nil {
		return 0, err
	}
	sample, err := sampleLaplace(src, p.Value)
	if err != nil {
		return 0, err
	}
	return x + sample, nil
}

// ConfidenceInterval computes a confidence interval that contains the raw value
// x from which noisedX is computed with a probability equal to 1 - alpha.
//
// See https://github.com/google/differential-privacy/tree/main/common_docs/confidence_intervals.md.
func (laplace) ConfidenceInterval(noisedX float64, p Params, alpha float64) (ConfidenceInterval, error) {
	if err := checkAlpha(alpha); err != nil {
		return ConfidenceInterval{}, err
	}
	if err := checkKind(p, LaplaceNoise); err != nil {
		return ConfidenceInterval{}, err
	}
	return computeConfidenceIntervalLaplace(noisedX, p.Value, alpha), nil
}

func (laplace) String() string {
	return "Laplace Noise"
}

// laplaceLambda computes the scale parameter λ for the Laplace noise
// distribution required by the Laplace mechanism for achieving ε-differential
// privacy.
func laplaceLambda(sensitivity, epsilon float64) float64 {
	return sensitivity / epsilon
}

// sampleLaplace draws u uniformly from (-0.5, 0.5) and returns
//
//	-λ·sign(u)·ln(1 - 2|u|),
//
// the inverse CDF of the Laplace distribution evaluated at u + 0.5. A draw with
// |u| ≥ 0.5 would make the logarithm diverge and is redrawn.
func sampleLaplace(src rand.Source, lambda float64) (float64, error) {
	for attempt := 0; attempt < MaxDrawAttempts; attempt++ {
		u := src.Uniform() - 0.5
		// Also rejects NaN.
		if !(math.Abs(u) < 0.5) {
			log.V(1).Infof("sampleLaplace: redrawing singular uniform draw (attempt %d)", attempt+1)
			continue
		}
		if u == 0 {
			return 0, nil
		}
		sample := -lambda * math.Copysign(1, u) * math.Log(1-2*math.Abs(u))
		if !math.IsInf(sample, 0) && !math.IsNaN(sample) {
			return sample, nil
		}
	}
	return 0, fmt.Errorf("%w: no usable uniform draw for Laplace noise after %d attempts", ErrNumericDegeneracy, MaxDrawAttempts)
}

// computeConfidenceIntervalLaplace computes a confidence interval that contains the raw value x from which
// float64 noisedX is computed with a probability equal to 1 - alpha with the given lambda.
func computeConfidenceIntervalLaplace(noisedX float64, lambda, alpha float64) ConfidenceInterval {
	if lambda == 0 {
		return ConfidenceInterval{LowerBound: noisedX, UpperBound: noisedX}
	}
	z := inverseCDFLaplace(lambda, alpha/2)
	// Because of the symmetry of the Laplace distribution,
	// -z corresponds to the (1 - alpha/2)-quantile of the distribution,
	// meaning that the interval [z, -z] contains 1-alpha of the probability mass.
	// alpha/2 is more accurately representable than 1 - alpha/2 for small alpha.
	return ConfidenceInterval{LowerBound: noisedX + z, UpperBound: noisedX - z}
}

// inverseCDFLaplace computes the quantile z satisfying Pr[Y <= z] = p for a random variable Y
// that is Laplace distributed with the specified lambda where mean is zero.
func inverseCDFLaplace(lambda, p float64) float64 {
	if p < 0.5 {
		return lambda * math.Log(2*p)
	}
	return -lambda * math.Log(2*(1-p))
}
