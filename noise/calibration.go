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

	"gonum.org/v1/gonum/stat/distuv"
)

// defaultSigmaAccuracy is the relative accuracy up to which AnalyticCalibration
// approximates the smallest σ that satisfies the given privacy budget.
const defaultSigmaAccuracy = 1e-3

// Calibration derives the standard deviation σ of Gaussian noise from a
// privacy budget and a sensitivity. Gaussian noise validates both before
// calling Sigma: ε > 0, δ in (0,1) and sensitivity ≥ 0 hold.
type Calibration interface {
	Sigma(b Budget, sensitivity float64) float64
}

// ClassicCalibration is the classic analytic bound of Dwork and Roth, "The
// Algorithmic Foundations of Differential Privacy", Theorem A.1:
//
//	σ = sensitivity·√(2·ln(1.25/δ)) / ε.
//
// It is a simplified bound, sufficient for moderate (ε, δ), that overestimates
// the required noise. It is not the tight bound of AnalyticCalibration.
type ClassicCalibration struct{}

// Sigma returns sensitivity·√(2·ln(1.25/δ)) / ε.
func (ClassicCalibration) Sigma(b Budget, sensitivity float64) float64 {
	return sensitivity * math.Sqrt(2*math.Log(1.25/b.Delta)) / b.Epsilon
}

func (ClassicCalibration) String() string {
	return "classic calibration"
}

// AnalyticCalibration computes the smallest σ for which the Gaussian mechanism
// is (ε,δ)-differentially private, following Balle and Wang's "Improving the
// Gaussian Mechanism for Differential Privacy: Analytical Calibration and
// Optimal Denoising" (https://arxiv.org/abs/1805.06530v2).
type AnalyticCalibration struct {
	// Accuracy is the relative accuracy of the binary search for σ. The result
	// deviates from the tight σ by at most Accuracy·σ, and never lies below it.
	// Defaults to 1e-3.
	Accuracy float64
}

// Sigma calculates σ using binary search.
//
// Runtime: O(log(max(σ_tight/sensitivity, sensitivity/σ_tight)) + log(Accuracy)).
func (c AnalyticCalibration) Sigma(b Budget, sensitivity float64) float64 {
	if sensitivity == 0 {
		return 0
	}
	accuracy := c.Accuracy
	if accuracy <= 0 {
		accuracy = defaultSigmaAccuracy
	}

	// The required noise grows linearly with the sensitivity, which makes it a
	// good starting guess for the upper bound.
	upperBound := sensitivity
	var lowerBound float64

	// deltaForGaussian is decreasing in sigma. When this loop exits,
	// upperBound - lowerBound <= σ_tight and, if σ_tight > sensitivity,
	// lowerBound >= 0.5·σ_tight.
	for deltaForGaussian(upperBound, sensitivity, b.Epsilon) > b.Delta {
		lowerBound = upperBound
		upperBound = upperBound * 2
	}

	for upperBound-lowerBound > accuracy*lowerBound {
		middle := lowerBound*0.5 + upperBound*0.5
		if deltaForGaussian(middle, sensitivity, b.Epsilon) > b.Delta {
			lowerBound = middle
		} else {
			upperBound = middle
		}
	}
	return upperBound
}

func (c AnalyticCalibration) String() string {
	return fmt.Sprintf("analytic calibration (accuracy %g)", c.Accuracy)
}

// deltaForGaussian computes the smallest δ such that the Gaussian mechanism
// with fixed standard deviation σ is (ε,δ)-differentially private for a
// statistic of the given L2 sensitivity s (Balle and Wang, Theorem 8):
//
//	δ(σ,s,ε) = Φ(s/(2σ) - εσ/s) - exp(ε)·Φ(-s/(2σ) - εσ/s)
//
// where Φ is the CDF of the standard normal distribution.
func deltaForGaussian(sigma, sensitivity, epsilon float64) float64 {
	a := sensitivity / (2 * sigma)
	b := epsilon * sigma / sensitivity
	c := math.Exp(epsilon)

	if math.IsInf(c, +1) {
		// δ(σ,s,ε) –> 0 as ε –> ∞.
		return 0
	}
	if math.IsInf(b, +1) {
		// δ(σ,s,ε) –> 0 as s –> 0.
		return 0
	}
	return distuv.UnitNormal.CDF(a-b) - c*distuv.UnitNormal.CDF(-a-b)
}
