//
// Copyright 2023 Google LLC
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

// Package stattestutils provides basic statistical utility functions for
// testing noise samplers.
//
// This package is not optimized for performance or speed and is only intended
// to be used in tests.
package stattestutils

import "math"

// ToleranceQuantile is the 99.9995% quantile of the standard normal
// distribution. Tolerances scaled by it make a statistical test falsely reject
// with a probability of 10⁻⁵.
const ToleranceQuantile = 4.41717

// Ratios μ₄/σ⁴ of the fourth central moment to the squared variance.
const (
	GaussianMomentRatio = 3.0
	LaplaceMomentRatio  = 6.0
)

// SampleMean returns the mean of a slice, calculated as the average over the
// values in the slice.
func SampleMean(values []float64) float64 {
	var sum float64 = 0.0
	for _, v := range values {
		sum += v
	}
	return sum / math.Max(1, float64(len(values)))
}

// SampleVariance returns the variance of a slice, calculated as the sum of
// squares of the distance to the mean of each of the values, divided by the
// number of values.
func SampleVariance(values []float64) float64 {
	mean := SampleMean(values)
	var sumOfSquares float64 = 0.0
	for _, v := range values {
		sumOfSquares += math.Pow(v-mean, 2)
	}
	return sumOfSquares / math.Max(1, float64(len(values)))
}

// MeanTolerance returns the tolerance for the sample mean of n samples drawn
// from a distribution with the given variance. The sample mean is
// approximately normal with standard deviation sqrt(variance / n).
func MeanTolerance(variance float64, n int) float64 {
	return ToleranceQuantile * math.Sqrt(variance/float64(n))
}

// VarianceTolerance returns the tolerance for the sample variance of n samples
// drawn from a distribution with the given variance and moment ratio μ₄/σ⁴.
// The sample variance is approximately normal with standard deviation
// sqrt(momentRatio - 1) * variance / sqrt(n).
func VarianceTolerance(variance, momentRatio float64, n int) float64 {
	return ToleranceQuantile * math.Sqrt(momentRatio-1) * variance / math.Sqrt(float64(n))
}
