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

// Package noise contains methods to generate and add calibrated noise to a
// numeric statistic so that the result is differentially private.
//
// The single entry point is AddNoise:
//
//	src := rand.NewSecure()
//	noisyReach, err := noise.AddNoise(src, 1200, "laplace", &noise.Options{Epsilon: 0.9, Sensitivity: noise.Float64(1)})
//
// Every call is a pure computation apart from the uniform draws it consumes
// from the injected rand.Source, so calls may run concurrently as long as the
// Source is safe for concurrent use.
package noise

import (
	"errors"
	"fmt"
	"math"
	"strings"

	log "github.com/golang/glog"
	"github.com/google/differential-privacy/reachnoise/checks"
	"github.com/google/differential-privacy/reachnoise/rand"
)

// Errors returned by this package. Every error wraps exactly one of them.
var (
	// ErrInvalidParameter reports an out-of-range privacy budget, sensitivity,
	// noise scale or confidence level.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrUnsupportedMechanism reports a mechanism other than Laplace or Gaussian.
	ErrUnsupportedMechanism = errors.New("unsupported mechanism")
	// ErrNumericDegeneracy reports that every uniform draw of a sampling attempt
	// fell on a singular boundary of the noise distribution.
	ErrNumericDegeneracy = errors.New("numeric degeneracy")
)

// MaxDrawAttempts bounds how often a sampler redraws after a uniform draw
// that lies on a singular boundary of its distribution.
const MaxDrawAttempts = 64

// Defaults applied by Options to fields left unset.
const (
	DefaultEpsilon     = 1.0
	DefaultDelta       = 1e-5
	DefaultSensitivity = 1.0
)

// Kind is an enum type. Its values are the supported noise distributions types
// for differential privacy operations.
type Kind int

// Noise distributions used to achieve Differential Privacy.
const (
	GaussianNoise Kind = iota
	LaplaceNoise
	Unrecognised
)

// String returns the mechanism name accepted by ParseKind.
func (k Kind) String() string {
	switch k {
	case GaussianNoise:
		return "gaussian"
	case LaplaceNoise:
		return "laplace"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind converts a mechanism name ("laplace" or "gaussian", case
// insensitive) into a Kind.
func ParseKind(mechanism string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(mechanism)) {
	case "laplace":
		return LaplaceNoise, nil
	case "gaussian":
		return GaussianNoise, nil
	}
	return Unrecognised, fmt.Errorf("%w: %q, must be one of \"laplace\", \"gaussian\"", ErrUnsupportedMechanism, mechanism)
}

// ToNoise converts a Kind into a Noise instance. Gaussian noise uses the
// ClassicCalibration.
func ToNoise(k Kind) Noise {
	switch k {
	case GaussianNoise:
		return Gaussian()
	case LaplaceNoise:
		return Laplace()
	case Unrecognised:
		log.Warningf("ToNoise: Unrecognised noise specified, returning nil")
	default:
		log.Warningf("ToNoise: unknown kind (%v) specified, returning nil", k)
	}
	return nil
}

// ToKind converts a Noise instance into a Kind.
func ToKind(n Noise) Kind {
	switch n.(type) {
	case gaussian:
		return GaussianNoise
	case laplace:
		return LaplaceNoise
	case nil:
		log.Warningf("ToKind: nil noise specified, returning Unrecognised")
	default:
		log.Warningf("ToKind: unknown Noise (%v) specified, returning Unrecognised", n)
	}
	return Unrecognised
}

// Budget is the privacy budget of a single query.
type Budget struct {
	// Epsilon is the privacy loss ε. It must be strictly positive.
	Epsilon float64
	// Delta is the failure probability δ. It is only used by Gaussian noise,
	// where it must lie in (0,1); 0 means absent.
	Delta float64
}

// Params holds the resolved parameter of a noise distribution: the scale λ
// of Laplace noise or the standard deviation σ of Gaussian noise.
type Params struct {
	Kind  Kind
	Value float64
}

// LaplaceParams returns Params for Laplace noise of the given scale.
func LaplaceParams(scale float64) Params {
	return Params{Kind: LaplaceNoise, Value: scale}
}

// GaussianParams returns Params for Gaussian noise of the given standard deviation.
func GaussianParams(sigma float64) Params {
	return Params{Kind: GaussianNoise, Value: sigma}
}

// Scale returns the Laplace scale λ, or 0 if p does not describe Laplace noise.
func (p Params) Scale() float64 {
	if p.Kind != LaplaceNoise {
		return 0
	}
	return p.Value
}

// Sigma returns the Gaussian standard deviation σ, or 0 if p does not describe
// Gaussian noise.
func (p Params) Sigma() float64 {
	if p.Kind != GaussianNoise {
		return 0
	}
	return p.Value
}

// Variance returns the variance of the noise described by p.
func (p Params) Variance() float64 {
	switch p.Kind {
	case LaplaceNoise:
		return 2 * p.Value * p.Value
	case GaussianNoise:
		return p.Value * p.Value
	}
	return math.NaN()
}

func (p Params) check() error {
	switch p.Kind {
	case LaplaceNoise, GaussianNoise:
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedMechanism, p.Kind)
	}
	// A zero value is only produced by resolving a sensitivity of 0; it adds no
	// noise.
	if p.Value == 0 {
		return nil
	}
	if err := checks.CheckScale(p.Value, paramName(p.Kind)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	return nil
}

func paramName(k Kind) string {
	if k == GaussianNoise {
		return "Sigma"
	}
	return "Scale"
}

// ConfidenceInterval holds lower and upper bounds as float64 for the confidence interval.
type ConfidenceInterval struct {
	LowerBound, UpperBound float64
}

// Options are the parameters of a single AddNoise call. Epsilon and Delta
// left at zero are unset. Sensitivity, Scale and Sigma are unset when nil, so
// an explicit 0 is kept; see Float64.
type Options struct {
	// Privacy parameter ε. Required unless Scale (Laplace) or Sigma (Gaussian)
	// is set. Defaults to DefaultEpsilon, which is not privacy guidance.
	Epsilon float64
	// Privacy parameter δ, used by Gaussian noise only. Defaults to DefaultDelta.
	Delta float64
	// How much one individual can change the statistic. Defaults to
	// DefaultSensitivity. A sensitivity of 0 adds no noise.
	Sensitivity *float64
	// Scale overrides the Laplace scale λ. Epsilon and Delta are then ignored.
	// It must be strictly positive.
	Scale *float64
	// Sigma overrides the Gaussian standard deviation σ. Epsilon and Delta are
	// then ignored. It must be strictly positive.
	Sigma *float64
	// Calibration derives σ for Gaussian noise. Defaults to ClassicCalibration.
	Calibration Calibration
}

// Float64 returns a pointer to v, for the optional fields of Options.
func Float64(v float64) *float64 {
	return &v
}

func (o *Options) budget() (Budget, float64) {
	if o == nil {
		o = &Options{}
	}
	b := Budget{Epsilon: o.Epsilon, Delta: o.Delta}
	if b.Epsilon == 0 {
		b.Epsilon = DefaultEpsilon
	}
	if b.Delta == 0 {
		b.Delta = DefaultDelta
	}
	sensitivity := DefaultSensitivity
	if o.Sensitivity != nil {
		sensitivity = *o.Sensitivity
	}
	return b, sensitivity
}

// override returns the caller-computed parameter for kind k, or 0 if it is
// unset. A set override must be strictly positive.
func (o *Options) override(k Kind) (float64, error) {
	if o == nil {
		return 0, nil
	}
	v := o.Scale
	if k == GaussianNoise {
		v = o.Sigma
	}
	if v == nil {
		return 0, nil
	}
	if err := checkOverride(*v, paramName(k)); err != nil {
		return 0, err
	}
	return *v, nil
}

// resolve derives the parameters of n from o.
func (o *Options) resolve(n Noise) (Params, error) {
	override, err := o.override(ToKind(n))
	if err != nil {
		return Params{}, err
	}
	b, sensitivity := o.budget()
	return n.Resolve(b, sensitivity, override)
}

func (o *Options) noise(k Kind) Noise {
	if k == GaussianNoise && o != nil && o.Calibration != nil {
		return GaussianWithCalibration(o.Calibration)
	}
	return ToNoise(k)
}

// Noise is an interface for primitives that add noise to data to make it
// differentially private.
type Noise interface {
	// Resolve derives the noise parameters from the privacy budget b and the
	// sensitivity of the statistic. A non-zero override is a caller-computed
	// scale (Laplace) or σ (Gaussian) that takes precedence over b and
	// sensitivity, which are then ignored.
	Resolve(b Budget, sensitivity, override float64) (Params, error)

	// Sample draws a single noise value for p from src.
	Sample(src rand.Source, p Params) (float64, error)

	// AddNoise resolves the parameters of opt, draws one noise value from src
	// and returns x plus the noise.
	AddNoise(src rand.Source, x float64, opt *Options) (float64, error)

	// ConfidenceInterval computes a confidence interval that contains the raw
	// value x from which noisedX is computed with a probability equal to
	// 1 - alpha, given the noise parameters p.
	ConfidenceInterval(noisedX float64, p Params, alpha float64) (ConfidenceInterval, error)
}

// AddNoise adds noise of the named mechanism ("laplace" or "gaussian") to x.
// The noise is resolved from opt, which may be nil to use the defaults, and
// drawn from src.
//
// Parameter and mechanism errors are never transient: they are returned
// immediately and the call is not retried.
func AddNoise(src rand.Source, x float64, mechanism string, opt *Options) (float64, error) {
	k, err := ParseKind(mechanism)
	if err != nil {
		return 0, err
	}
	return opt.noise(k).AddNoise(src, x, opt)
}

// ResolveOptions derives the parameters of the named mechanism from opt, the
// same way AddNoise does before drawing. Callers that noise many values with
// the same options resolve once and Sample for every value.
func ResolveOptions(mechanism string, opt *Options) (Params, error) {
	k, err := ParseKind(mechanism)
	if err != nil {
		return Params{}, err
	}
	return opt.resolve(opt.noise(k))
}

// Resolve derives the parameters of noise kind k. See Noise.Resolve.
func Resolve(k Kind, b Budget, sensitivity, override float64) (Params, error) {
	n := ToNoise(k)
	if n == nil {
		return Params{}, fmt.Errorf("%w: %v", ErrUnsupportedMechanism, k)
	}
	return n.Resolve(b, sensitivity, override)
}

// Sample draws a single noise value for p from src. See Noise.Sample.
func Sample(src rand.Source, p Params) (float64, error) {
	n := ToNoise(p.Kind)
	if n == nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedMechanism, p.Kind)
	}
	return n.Sample(src, p)
}

func checkSource(src rand.Source) error {
	if src == nil {
		return fmt.Errorf("%w: rand.Source is nil", ErrInvalidParameter)
	}
	return nil
}

func checkOverride(override float64, name string) error {
	if err := checks.CheckScale(override, name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	return nil
}

func checkBudget(b Budget, sensitivity float64) error {
	if err := checks.CheckEpsilonStrict(b.Epsilon); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	if err := checks.CheckSensitivity(sensitivity); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	return nil
}

func checkAlpha(alpha float64) error {
	if err := checks.CheckAlpha(alpha); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	return nil
}

func checkKind(p Params, want Kind) error {
	if p.Kind != want {
		return fmt.Errorf("%w: %v parameters passed to %v noise", ErrInvalidParameter, p.Kind, want)
	}
	return p.check()
}
