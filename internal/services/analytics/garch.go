package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"PairPilot/internal/domain/models"
	"PairPilot/internal/domain/repository"
	"PairPilot/internal/services/features"
	applogger "PairPilot/pkg/logger"
)

const (
	// MinGARCHReturns is the fewest returns a model fit is attempted on.
	MinGARCHReturns = 30
	// MinVolatilityReturns is the fewest returns any forecast is made from.
	MinVolatilityReturns = 10

	regimeBand  = 0.20
	returnScale = 100.0
)

var errFitFailed = errors.New("garch fit failed")

// GARCHForecaster fits a GARCH(p,q) model by maximum likelihood and
// forecasts annualized volatility.
type GARCHForecaster struct {
	common
	p, q          int
	lookback      int
	horizon       int
	annualization float64
}

// GARCHConfig holds the model order and windows.
type GARCHConfig struct {
	P                   int
	Q                   int
	LookbackDays        int
	HorizonDays         int
	AnnualizationFactor float64
}

// NewGARCHForecaster validates cfg.
func NewGARCHForecaster(cfg GARCHConfig, opts ...Option) (*GARCHForecaster, error) {
	if cfg.P < 1 || cfg.Q < 1 {
		return nil, fmt.Errorf("%w: garch order (%d,%d)", ErrInvalidWeights, cfg.P, cfg.Q)
	}
	if cfg.LookbackDays < MinVolatilityReturns || cfg.HorizonDays < 1 {
		return nil, fmt.Errorf("%w: garch lookback %d horizon %d", ErrInvalidWeights, cfg.LookbackDays, cfg.HorizonDays)
	}
	if cfg.AnnualizationFactor <= 0 {
		cfg.AnnualizationFactor = 365
	}
	return &GARCHForecaster{
		common:        applyOptions(opts),
		p:             cfg.P,
		q:             cfg.Q,
		lookback:      cfg.LookbackDays,
		horizon:       cfg.HorizonDays,
		annualization: cfg.AnnualizationFactor,
	}, nil
}

// Forecast fetches lookback returns for pair and forecasts volatility.
func (f *GARCHForecaster) Forecast(ctx context.Context, pair string, ds repository.DataSource) (*models.GARCHForecast, error) {
	bars := f.lookback * f.granularity.BarsPerDay()
	candles, _, err := ds.GetCandles(ctx, pair, f.granularity, bars+1)
	if err != nil {
		return nil, fmt.Errorf("garch candles %s: %w", pair, err)
	}
	returns := features.Tail(features.SimpleReturns(features.Closes(candles)), bars)
	return f.ForecastReturns(pair, returns)
}

// ForecastReturns forecasts from a return series.
//
// Fewer than MinVolatilityReturns returns yields ErrInsufficientData. Fewer
// than MinGARCHReturns, or a failed fit, yields the historical volatility
// with regime medium, zero persistence and Fallback set.
func (f *GARCHForecaster) ForecastReturns(pair string, returns []float64) (*models.GARCHForecast, error) {
	n := len(returns)
	if n < MinVolatilityReturns {
		return nil, fmt.Errorf("garch %s: %d returns: %w", pair, n, ErrInsufficientData)
	}

	periods := f.annualization * float64(f.granularity.BarsPerDay())
	hist := features.RealizedVolatility(returns, periods)
	out := &models.GARCHForecast{
		Pair:                 pair,
		HistoricalVolatility: hist,
		HorizonDays:          f.horizon,
		Observations:         n,
		Timestamp:            f.now(),
	}

	if n < MinGARCHReturns {
		return f.fallback(out, hist, "too few returns"), nil
	}

	start := time.Now()
	fit, err := fitGARCH(returns, f.p, f.q)
	if err != nil {
		return f.fallback(out, hist, err.Error()), nil
	}
	f.log.Debug("garch fitted",
		applogger.String("pair", pair),
		applogger.Float64("persistence", fit.persistence()),
		applogger.Duration("took", time.Since(start)))

	steps := f.horizon * f.granularity.BarsPerDay()
	meanVar := stat.Mean(fit.forecast(steps), nil)
	vol := math.Sqrt(meanVar*periods) / returnScale
	if math.IsNaN(vol) || math.IsInf(vol, 0) {
		return f.fallback(out, hist, "non-finite forecast"), nil
	}

	out.ForecastVolatility = vol
	out.Omega = fit.omega
	out.Alpha = fit.alpha
	out.Beta = fit.beta
	out.Persistence = fit.persistence()
	out.Regime = ClassifyRegime(vol, hist)
	out.ConfidenceLower, out.ConfidenceUpper = confidenceBand(vol, n)
	return out, nil
}

func (f *GARCHForecaster) fallback(out *models.GARCHForecast, hist float64, reason string) *models.GARCHForecast {
	f.log.Debug("garch fallback", applogger.String("pair", out.Pair), applogger.String("reason", reason))
	out.ForecastVolatility = hist
	out.Regime = models.RegimeMedium
	out.Persistence = 0
	out.Alpha = nil
	out.Beta = nil
	out.Omega = 0
	out.Fallback = true
	out.ConfidenceLower, out.ConfidenceUpper = confidenceBand(hist, out.Observations)
	return out
}

// ClassifyRegime compares forecast to historical volatility with a ±20% band.
func ClassifyRegime(forecast, historical float64) models.VolatilityRegime {
	switch {
	case historical <= 0:
		return models.RegimeMedium
	case forecast > historical*(1+regimeBand):
		return models.RegimeHigh
	case forecast < historical*(1-regimeBand):
		return models.RegimeLow
	default:
		return models.RegimeMedium
	}
}

func confidenceBand(vol float64, n int) (float64, float64) {
	if n <= 0 {
		return vol, vol
	}
	half := 1.96 / math.Sqrt(2*float64(n))
	return math.Max(0, vol*(1-half)), vol * (1 + half)
}

// garchFit holds fitted parameters and the in-sample state needed to
// forecast.
type garchFit struct {
	omega float64
	alpha []float64
	beta  []float64
	eps2  []float64
	sig2  []float64
}

func (g garchFit) persistence() float64 {
	s := 0.0
	for _, a := range g.alpha {
		s += a
	}
	for _, b := range g.beta {
		s += b
	}
	return s
}

// forecast returns the expected conditional variance for each of the next
// steps periods (in scaled units).
func (g garchFit) forecast(steps int) []float64 {
	e2 := append([]float64(nil), g.eps2...)
	s2 := append([]float64(nil), g.sig2...)
	out := make([]float64, 0, steps)
	for h := 0; h < steps; h++ {
		v := nextVariance(g.omega, g.alpha, g.beta, e2, s2)
		out = append(out, v)
		// E[eps^2] of a future period equals its conditional variance.
		e2 = append(e2, v)
		s2 = append(s2, v)
	}
	return out
}

func nextVariance(omega float64, alpha, beta, eps2, sig2 []float64) float64 {
	v := omega
	for i, a := range alpha {
		v += a * eps2[len(eps2)-1-i]
	}
	for j, b := range beta {
		v += b * sig2[len(sig2)-1-j]
	}
	return v
}

// fitGARCH maximizes the Gaussian likelihood of demeaned, scaled returns.
// Parameters are searched in an unconstrained space: omega = exp(x0) and
// each coefficient c_k = exp(x_k)/(1+sum exp(x)), which keeps omega
// positive, coefficients non-negative and persistence below one.
func fitGARCH(returns []float64, p, q int) (garchFit, error) {
	eps := make([]float64, len(returns))
	mean := stat.Mean(returns, nil)
	for i, r := range returns {
		eps[i] = (r - mean) * returnScale
	}
	variance := stat.Variance(eps, nil)
	if variance <= 0 || math.IsNaN(variance) {
		return garchFit{}, fmt.Errorf("%w: zero variance", errFitFailed)
	}

	k := p + q
	decode := func(x []float64) (float64, []float64, []float64) {
		omega := math.Exp(x[0])
		s := 0.0
		ex := make([]float64, k)
		for i := 0; i < k; i++ {
			ex[i] = math.Exp(x[1+i])
			s += ex[i]
		}
		coef := make([]float64, k)
		for i := range ex {
			coef[i] = ex[i] / (1 + s)
		}
		return omega, coef[:p], coef[p:]
	}

	nll := func(x []float64) float64 {
		omega, alpha, beta := decode(x)
		_, _, ll := filter(eps, variance, omega, alpha, beta)
		if math.IsNaN(ll) || math.IsInf(ll, 0) {
			return math.MaxFloat64 / 4
		}
		return -ll
	}

	// Start from alpha=0.1, beta=0.85 split across lags.
	const startPersistence = 0.95
	scale := 1 / (1 - startPersistence)
	x0 := make([]float64, 1+k)
	x0[0] = math.Log(variance * (1 - startPersistence))
	for i := 0; i < p; i++ {
		x0[1+i] = math.Log(0.10 / float64(p) * scale)
	}
	for j := 0; j < q; j++ {
		x0[1+p+j] = math.Log(0.85 / float64(q) * scale)
	}

	res, err := optimize.Minimize(optimize.Problem{Func: nll}, x0, &optimize.Settings{
		FuncEvaluations: 4000,
		Converger:       &optimize.FunctionConverge{Absolute: 1e-8, Iterations: 200},
	}, &optimize.NelderMead{})
	if err != nil {
		return garchFit{}, fmt.Errorf("%w: %v", errFitFailed, err)
	}
	if res == nil || math.IsNaN(res.F) || res.F >= math.MaxFloat64/8 {
		return garchFit{}, fmt.Errorf("%w: no finite likelihood", errFitFailed)
	}

	omega, alpha, beta := decode(res.X)
	eps2, sig2, _ := filter(eps, variance, omega, alpha, beta)
	fit := garchFit{omega: omega, alpha: alpha, beta: beta, eps2: eps2, sig2: sig2}
	if fit.persistence() >= 1 {
		return garchFit{}, fmt.Errorf("%w: non-stationary", errFitFailed)
	}
	return fit, nil
}

// filter runs the variance recursion, seeding pre-sample lags with the
// sample variance, and returns squared residuals, conditional variances and
// the log-likelihood.
func filter(eps []float64, seed, omega float64, alpha, beta []float64) ([]float64, []float64, float64) {
	lags := max(len(alpha), len(beta))
	eps2 := make([]float64, 0, len(eps)+lags)
	sig2 := make([]float64, 0, len(eps)+lags)
	for i := 0; i < lags; i++ {
		eps2 = append(eps2, seed)
		sig2 = append(sig2, seed)
	}

	ll := 0.0
	for _, e := range eps {
		v := nextVariance(omega, alpha, beta, eps2, sig2)
		if v <= 0 {
			return nil, nil, math.Inf(-1)
		}
		ll += -0.5 * (math.Log(2*math.Pi) + math.Log(v) + e*e/v)
		eps2 = append(eps2, e*e)
		sig2 = append(sig2, v)
	}
	return eps2, sig2, ll
}
