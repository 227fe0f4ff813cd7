package core

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	m "volcast/models"
)

const (
	backcastDecay  = 0.94
	backcastWindow = 75

	startingArchWeight  = 0.1
	startingGarchWeight = 0.8

	// bounds the unconstrained parameters before exponentiating. The logit bound keeps 1 + sum(exp)
	// representable so the weights sum strictly below one.
	maxExponent = 50.0
	maxLogit    = 30.0
)

// garchParams are the model parameters in their natural space.
// alpha weights lagged squared residuals, beta weights lagged conditional variances.
type garchParams struct {
	mu    float64
	omega float64
	alpha []float64
	beta  []float64
}

func (gp garchParams) persistence() float64 {
	return floats.Sum(gp.alpha) + floats.Sum(gp.beta)
}

// garchModel is a GARCH(p, q) variance model over one snapshot of data.
// Optimization runs on an unconstrained vector: [mu], log(omega), then p+q logits. The logits map to
// alpha and beta with a slack term so every weight is positive and the weights sum below one.
type garchModel struct {
	p, q     int
	mean     m.MeanModel
	data     []float64
	backcast float64

	// scratch buffers reused across likelihood evaluations, the optimizer evaluates sequentially
	residuals []float64
	variances []float64
}

// garchFit is the fitted model for a single grid date. It is created and dropped inside one iteration.
type garchFit struct {
	garchParams
	residuals     []float64
	variances     []float64
	backcast      float64
	logLikelihood float64
}

func newGarchModel(data []float64, settings m.ForecastSettings) *garchModel {
	return &garchModel{
		p:         settings.ArchLags,
		q:         settings.GarchLags,
		mean:      settings.Mean,
		data:      data,
		residuals: make([]float64, len(data)),
		variances: make([]float64, len(data)),
	}
}

// fitGarch estimates the model by maximum likelihood under Gaussian innovations.
// Any failure, including a panic inside the optimizer, comes back as a *ModelFitError.
func fitGarch(data []float64, settings m.ForecastSettings) (fit *garchFit, err error) {
	defer func() {
		if r := recover(); r != nil {
			fit = nil
			err = newModelFitError(m.FitFailureNumerical, "optimizer panicked: %v", r)
		}
	}()

	if len(data) == 0 {
		return nil, newModelFitError(m.FitFailureDegenerate, "no observations to fit")
	}

	model := newGarchModel(data, settings)

	start, err := model.startingParams()
	if err != nil {
		return nil, err
	}

	x0 := model.encode(start)
	if f0 := model.negLogLikelihood(x0); math.IsInf(f0, 0) || math.IsNaN(f0) {
		return nil, newModelFitError(m.FitFailureNumerical, "likelihood is not finite at the starting values")
	}

	problem := optimize.Problem{Func: model.negLogLikelihood}
	optSettings := &optimize.Settings{
		FuncEvaluations: settings.MaxFunctionEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 100,
		},
	}

	result, err := optimize.Minimize(problem, x0, optSettings, &optimize.NelderMead{})
	if err != nil {
		return nil, newModelFitError(m.FitFailureNonConvergence, "error minimizing negative log likelihood: %w", err)
	}
	if result == nil {
		return nil, newModelFitError(m.FitFailureNonConvergence, "optimizer returned no result")
	}
	// hitting an evaluation, iteration or runtime limit ends the run without an error
	if result.Status.Early() {
		return nil, newModelFitError(m.FitFailureNonConvergence, "optimizer stopped with status %v before converging", result.Status)
	}
	if math.IsInf(result.F, 0) || math.IsNaN(result.F) {
		return nil, newModelFitError(m.FitFailureNumerical, "log likelihood is not finite at the optimum (%v)", result.F)
	}

	params := model.decode(result.X)
	residuals := make([]float64, len(data))
	variances := make([]float64, len(data))
	model.computeResiduals(params.mu, residuals)
	model.computeVariances(params, residuals, variances)

	return &garchFit{
		garchParams:   params,
		residuals:     residuals,
		variances:     variances,
		backcast:      model.backcast,
		logLikelihood: -result.F,
	}, nil
}

// forecastVariance is the one step ahead conditional variance.
func (f *garchFit) forecastVariance() (float64, error) {
	n := len(f.residuals)
	res := f.omega
	for i, a := range f.alpha {
		lag := n - 1 - i
		if lag >= 0 {
			res += a * f.residuals[lag] * f.residuals[lag]
		} else {
			res += a * f.backcast
		}
	}
	for j, b := range f.beta {
		lag := n - 1 - j
		if lag >= 0 {
			res += b * f.variances[lag]
		} else {
			res += b * f.backcast
		}
	}

	if math.IsNaN(res) || math.IsInf(res, 0) {
		return 0, newModelFitError(m.FitFailureNumerical, "forecast variance is not finite")
	}
	if res < 0 {
		return 0, newModelFitError(m.FitFailureNumerical, "forecast variance is negative (%v)", res)
	}
	return res, nil
}

// startingParams also fixes the backcast, computed once from the residuals at the starting mean.
func (gm *garchModel) startingParams() (garchParams, error) {
	mu := 0.0
	if gm.mean == m.MeanConstant {
		mu = stat.Mean(gm.data, nil)
	}
	gm.computeResiduals(mu, gm.residuals)

	secondMoment := 0.0
	for _, r := range gm.residuals {
		secondMoment += r * r
	}
	secondMoment /= float64(len(gm.residuals))

	if math.IsNaN(secondMoment) || math.IsInf(secondMoment, 0) {
		return garchParams{}, newModelFitError(m.FitFailureNumerical, "residual second moment is not finite")
	}
	if secondMoment <= 0 {
		return garchParams{}, newModelFitError(m.FitFailureDegenerate, "residuals have zero variance")
	}

	gm.backcast = exponentialBackcast(gm.residuals)

	alphaWeight := startingArchWeight
	betaWeight := 0.0
	if gm.q > 0 {
		betaWeight = startingGarchWeight
	}

	params := garchParams{
		mu:    mu,
		omega: secondMoment * (1 - alphaWeight - betaWeight),
		alpha: make([]float64, gm.p),
		beta:  make([]float64, gm.q),
	}
	for i := range params.alpha {
		params.alpha[i] = alphaWeight / float64(gm.p)
	}
	for j := range params.beta {
		params.beta[j] = betaWeight / float64(gm.q)
	}

	return params, nil
}

func (gm *garchModel) negLogLikelihood(x []float64) float64 {
	params := gm.decode(x)
	gm.computeResiduals(params.mu, gm.residuals)
	gm.computeVariances(params, gm.residuals, gm.variances)

	ll := 0.0
	for t, e := range gm.residuals {
		v := gm.variances[t]
		if !(v > 0) || math.IsInf(v, 0) {
			return math.Inf(1)
		}
		ll += distuv.Normal{Mu: 0, Sigma: math.Sqrt(v)}.LogProb(e)
	}

	if math.IsNaN(ll) {
		return math.Inf(1)
	}
	return -ll
}

func (gm *garchModel) computeResiduals(mu float64, dst []float64) {
	for i, v := range gm.data {
		dst[i] = v - mu
	}
}

func (gm *garchModel) computeVariances(params garchParams, residuals, dst []float64) {
	for t := range residuals {
		v := params.omega
		for i, a := range params.alpha {
			lag := t - 1 - i
			if lag >= 0 {
				v += a * residuals[lag] * residuals[lag]
			} else {
				v += a * gm.backcast
			}
		}
		for j, b := range params.beta {
			lag := t - 1 - j
			if lag >= 0 {
				v += b * dst[lag]
			} else {
				v += b * gm.backcast
			}
		}
		dst[t] = v
	}
}

func (gm *garchModel) nParams() int {
	n := 1 + gm.p + gm.q
	if gm.mean == m.MeanConstant {
		n++
	}
	return n
}

func (gm *garchModel) encode(params garchParams) []float64 {
	x := make([]float64, 0, gm.nParams())
	if gm.mean == m.MeanConstant {
		x = append(x, params.mu)
	}
	x = append(x, math.Log(params.omega))

	slack := 1 - params.persistence()
	for _, a := range params.alpha {
		x = append(x, math.Log(a/slack))
	}
	for _, b := range params.beta {
		x = append(x, math.Log(b/slack))
	}
	return x
}

func (gm *garchModel) decode(x []float64) garchParams {
	i := 0
	params := garchParams{
		alpha: make([]float64, gm.p),
		beta:  make([]float64, gm.q),
	}
	if gm.mean == m.MeanConstant {
		params.mu = x[i]
		i++
	}
	params.omega = math.Exp(clamp(x[i], maxExponent))
	i++

	weights := make([]float64, gm.p+gm.q)
	denominator := 1.0
	for k := range weights {
		weights[k] = math.Exp(clamp(x[i+k], maxLogit))
		denominator += weights[k]
	}
	floats.Scale(1/denominator, weights)

	copy(params.alpha, weights[:gm.p])
	copy(params.beta, weights[gm.p:])
	return params
}

// exponentialBackcast seeds the pre-sample squared residual and variance terms with an
// exponentially weighted mean of the first squared residuals.
func exponentialBackcast(residuals []float64) float64 {
	window := min(backcastWindow, len(residuals))
	weights := make([]float64, window)
	squares := make([]float64, window)
	for i := range window {
		weights[i] = math.Pow(backcastDecay, float64(i))
		squares[i] = residuals[i] * residuals[i]
	}
	floats.Scale(1/floats.Sum(weights), weights)
	return floats.Dot(weights, squares)
}

func clamp(v, bound float64) float64 {
	return math.Max(-bound, math.Min(bound, v))
}

func (gp garchParams) String() string {
	return fmt.Sprintf("mu=%.6f omega=%.6f alpha=%v beta=%v", gp.mu, gp.omega, gp.alpha, gp.beta)
}
