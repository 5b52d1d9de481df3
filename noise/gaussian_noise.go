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
	"github.com/google/differential-privacy/reachnoise/checks"
	"github.com/google/differential-privacy/reachnoise/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

type gaussian struct {
	calibration Calibration
}

// Gaussian returns a Noise instance that adds Gaussian noise to its input,
// achieving (ε,δ)-differential privacy.
//
// The standard deviation is derived with ClassicCalibration,
//
//	σ = sensitivity·√(2·ln(1.25/δ)) / ε,
//
// which is a loose analytic bound: it adds more noise than necessary and its
// guarantee is only proven for ε < 1. It is not the tight calibration used by
// production-grade analytic Gaussian mechanisms, so it must not be relied on
// for tight privacy accounting. Use GaussianWithCalibration with
// AnalyticCalibration for the tight bound.
//
// Samples are drawn with the Box–Muller transform.
func Gaussian() Noise {
	return gaussian{calibration: ClassicCalibration{}}
}

// GaussianWithCalibration returns a Noise instance that adds Gaussian noise
// whose standard deviation is derived by c.
func GaussianWithCalibration(c Calibration) Noise {
	if c == nil {
		c = ClassicCalibration{}
	}
	return gaussian{calibration: c}
}

// Resolve returns the standard deviation σ derived by the calibration of g, or
// the override if it is non-zero.
func (g gaussian) Resolve(b Budget, sensitivity, override float64) (Params, error) {
	if override != 0 {
		if err := checkOverride(override, "Sigma"); err != nil {
			return Params{}, err
		}
		return GaussianParams(override), nil
	}
	if err := checkArgsGaussian(b, sensitivity); err != nil {
		return Params{}, err
	}
	sigma := g.calibration.Sigma(b, sensitivity)
	if sigma < 0 || math.IsInf(sigma, 0) || math.IsNaN(sigma) {
		return Params{}, fmt.Errorf("%w: %v derived sigma %f for epsilon %f, delta %e, sensitivity %f",
			ErrInvalidParameter, g.calibration, sigma, b.Epsilon, b.Delta, sensitivity)
	}
	return GaussianParams(sigma), nil
}

// Sample draws Gaussian noise of standard deviation p.Sigma() from src.
func (gaussian) Sample(src rand.Source, p Params) (float64, error) {
	if err := checkSource(src); err != nil {
		return 0, err
	}
	if err := checkKind(p, GaussianNoise); err != nil {
		return 0, err
	}
	return sampleGaussian(src, p.Value)
}

// AddNoise adds Gaussian noise to the specified float64 x so that the output is
// (ε,δ)-differentially private given the sensitivity of the statistic.
func (g gaussian) AddNoise(src rand.Source, x float64, opt *Options) (float64, error) {
	if err := checkSource(src); err != nil {
		return 0, err
	}
	p, err := opt.resolve(g)
	if err != nil {
		return 0, err
	}
	sample, err := sampleGaussian(src, p.Value)
	if err != nil {
		return 0, err
	}
	return x + sample, nil
}

// ConfidenceInterval computes a confidence interval that contains the raw value
// x from which noisedX is computed with a probability equal to 1 - alpha.
func (gaussian) ConfidenceInterval(noisedX float64, p Params, alpha float64) (ConfidenceInterval, error) {
	if err := checkAlpha(alpha); err != nil {
		return ConfidenceInterval{}, err
	}
	if err := checkKind(p, GaussianNoise); err != nil {
		return ConfidenceInterval{}, err
	}
	if p.Value == 0 {
		return ConfidenceInterval{LowerBound: noisedX, UpperBound: noisedX}, nil
	}
	// z is the (alpha/2)-quantile; by symmetry -z is the (1 - alpha/2)-quantile.
	z := distuv.Normal{Mu: 0, Sigma: p.Value}.Quantile(alpha / 2)
	return ConfidenceInterval{LowerBound: noisedX + z, UpperBound: noisedX - z}, nil
}

func (g gaussian) String() string {
	return fmt.Sprintf("Gaussian Noise (%v)", g.calibration)
}

func checkArgsGaussian(b Budget, sensitivity float64) error {
	if err := checkBudget(b, sensitivity); err != nil {
		return err
	}
	if err := checks.CheckDeltaStrict(b.Delta); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	return nil
}

// sampleGaussian draws u1 from (0,1) and u2 from [0,1) and returns
//
//	σ·√(-2·ln u1)·cos(2π·u2),
//
// one of the two samples of the Box–Muller transform. The companion sample
// σ·√(-2·ln u1)·sin(2π·u2) is discarded. A draw u1 ≤ 0 would make the
// logarithm diverge and is redrawn along with u2.
func sampleGaussian(src rand.Source, sigma float64) (float64, error) {
	for attempt := 0; attempt < MaxDrawAttempts; attempt++ {
		u1, u2 := src.Uniform(), src.Uniform()
		// Also rejects NaN.
		if !(u1 > 0 && u1 <= 1 && u2 >= 0 && u2 <= 1) {
			log.V(1).Infof("sampleGaussian: redrawing singular uniform draw (attempt %d)", attempt+1)
			continue
		}
		sample := sigma * math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
		if !math.IsInf(sample, 0) && !math.IsNaN(sample) {
			return sample, nil
		}
	}
	return 0, fmt.Errorf("%w: no usable uniform draw for Gaussian noise after %d attempts", ErrNumericDegeneracy, MaxDrawAttempts)
}
