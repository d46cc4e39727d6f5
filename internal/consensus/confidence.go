package consensus

import "fmt"

// Level buckets a confidence score.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// LevelFor maps a score to its bucket: high at 0.8 and above, medium at
// 0.5 and above, low below.
func LevelFor(score float64) Level {
	switch {
	case score >= 0.8:
		return LevelHigh
	case score >= 0.5:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ConfidenceFactor is one scored input to a ConfidenceLevel, kept for
// explainability. Weight is the factor's normalized share; Contribution is
// Weight * Score.
type ConfidenceFactor struct {
	Name         string  `json:"name"`
	Weight       float64 `json:"weight"`
	Score        float64 `json:"score"`
	Contribution float64 `json:"contribution"`
	Detail       string  `json:"detail,omitempty"`
}

// ConfidenceLevel is a [0,1] score, its bucket, and the factors behind it.
type ConfidenceLevel struct {
	Score   float64            `json:"score"`
	Level   Level              `json:"level"`
	Factors []ConfidenceFactor `json:"factors,omitempty"`
}

// ConfidenceConfig tunes the factor thresholds and composition weights.
// Spread thresholds apply to the temperature standard deviation in °C,
// range thresholds to the inter-model temperature range.
type ConfidenceConfig struct {
	SpreadHigh float64
	SpreadLow  float64
	RangeHigh  float64
	RangeLow   float64

	SpreadWeight    float64
	AgreementWeight float64
	HorizonWeight   float64
}

// DefaultConfidenceConfig returns the standard tuning: full confidence at
// or below 1 °C of spread decaying to 0.3 at 5 °C, range thresholds 2 °C
// and 10 °C, and composition weights 0.5 / 0.3 / 0.2.
func DefaultConfidenceConfig() ConfidenceConfig {
	return ConfidenceConfig{
		SpreadHigh:      1.0,
		SpreadLow:       5.0,
		RangeHigh:       2.0,
		RangeLow:        10.0,
		SpreadWeight:    0.5,
		AgreementWeight: 0.3,
		HorizonWeight:   0.2,
	}
}

func (c ConfidenceConfig) withDefaults() ConfidenceConfig {
	def := DefaultConfidenceConfig()
	if c.SpreadHigh <= 0 {
		c.SpreadHigh = def.SpreadHigh
	}
	if c.SpreadLow <= c.SpreadHigh {
		c.SpreadLow = def.SpreadLow
	}
	if c.RangeHigh <= 0 {
		c.RangeHigh = def.RangeHigh
	}
	if c.RangeLow <= c.RangeHigh {
		c.RangeLow = def.RangeLow
	}
	if c.SpreadWeight <= 0 && c.AgreementWeight <= 0 && c.HorizonWeight <= 0 {
		c.SpreadWeight = def.SpreadWeight
		c.AgreementWeight = def.AgreementWeight
		c.HorizonWeight = def.HorizonWeight
	}
	return c
}

// piecewiseDown maps v to 1.0 at or below high, 0.3 at or above low, and
// linearly in between. Both factor shapes in the engine share it.
func piecewiseDown(v, high, low float64) float64 {
	switch {
	case v <= high:
		return 1.0
	case v >= low:
		return 0.3
	default:
		return 1.0 - 0.7*(v-high)/(low-high)
	}
}

// FromSpread scores the standard deviation of per-model values.
func FromSpread(stdDev, highThr, lowThr float64) float64 {
	return piecewiseDown(stdDev, highThr, lowThr)
}

// FromRange scores the raw inter-model range (max - min).
func FromRange(rng, highThr, lowThr float64) float64 {
	return piecewiseDown(rng, highThr, lowThr)
}

// FromTimeHorizon scores the forecast lead time: 1.0 now, losing 0.05 per
// day, floored at 0.5 from day 10 on.
func FromTimeHorizon(daysAhead float64) float64 {
	if daysAhead <= 0 {
		return 1.0
	}
	score := 1.0 - 0.05*daysAhead
	if score < 0.5 {
		return 0.5
	}
	return score
}

// FromAgreement scores how many of the requested models agree with the
// consensus. The floor of 0.3 keeps a lone agreeing model from zeroing the
// composite.
func FromAgreement(inAgreement, total int) float64 {
	if total <= 0 {
		return 0.3
	}
	if inAgreement > total {
		inAgreement = total
	}
	return 0.3 + 0.7*float64(inAgreement)/float64(total)
}

// compose builds a ConfidenceLevel from raw factors, renormalizing the
// weights over the factors actually present so an omitted factor (e.g.
// spread with a single model) redistributes rather than sinks the score.
func compose(factors []ConfidenceFactor) ConfidenceLevel {
	var totalWeight float64
	for _, f := range factors {
		totalWeight += f.Weight
	}
	if totalWeight == 0 {
		return ConfidenceLevel{Level: LevelLow}
	}

	score := 0.0
	normalized := make([]ConfidenceFactor, len(factors))
	for i, f := range factors {
		f.Weight = f.Weight / totalWeight
		f.Contribution = f.Weight * f.Score
		score += f.Contribution
		normalized[i] = f
	}
	return ConfidenceLevel{Score: score, Level: LevelFor(score), Factors: normalized}
}

// hourlyConfidence scores one hourly timestep. A single contributing model
// has no meaningful spread, so that factor is omitted and the remaining
// weights renormalized.
func (c ConfidenceConfig) hourlyConfidence(tempStdDev float64, contributing, inAgreement, requested int, daysAhead float64) ConfidenceLevel {
	var factors []ConfidenceFactor
	if contributing > 1 {
		factors = append(factors, ConfidenceFactor{
			Name:   "spread",
			Weight: c.SpreadWeight,
			Score:  FromSpread(tempStdDev, c.SpreadHigh, c.SpreadLow),
			Detail: fmt.Sprintf("temperature spread %.1f degC across %d models", tempStdDev, contributing),
		})
	}
	factors = append(factors,
		ConfidenceFactor{
			Name:   "agreement",
			Weight: c.AgreementWeight,
			Score:  FromAgreement(inAgreement, requested),
			Detail: fmt.Sprintf("%d of %d models in agreement", inAgreement, requested),
		},
		ConfidenceFactor{
			Name:   "horizon",
			Weight: c.HorizonWeight,
			Score:  FromTimeHorizon(daysAhead),
			Detail: fmt.Sprintf("%.1f days ahead", daysAhead),
		},
	)
	return compose(factors)
}

// dailyConfidence scores one consensus day from the inter-model range of
// daily maximum temperatures.
func (c ConfidenceConfig) dailyConfidence(tempMaxRange float64, contributing, inAgreement, requested, dayIndex int) ConfidenceLevel {
	var factors []ConfidenceFactor
	if contributing > 1 {
		factors = append(factors, ConfidenceFactor{
			Name:   "range",
			Weight: c.SpreadWeight,
			Score:  FromRange(tempMaxRange, c.RangeHigh, c.RangeLow),
			Detail: fmt.Sprintf("inter-model high spans %.1f degC", tempMaxRange),
		})
	}
	factors = append(factors,
		ConfidenceFactor{
			Name:   "agreement",
			Weight: c.AgreementWeight,
			Score:  FromAgreement(inAgreement, requested),
			Detail: fmt.Sprintf("%d of %d models in agreement", inAgreement, requested),
		},
		ConfidenceFactor{
			Name:   "horizon",
			Weight: c.HorizonWeight,
			Score:  FromTimeHorizon(float64(dayIndex)),
			Detail: fmt.Sprintf("day %d", dayIndex),
		},
	)
	return compose(factors)
}

// overallConfidence averages the per-timestep scores; hourly rows carry
// the signal when present, otherwise the daily rows do.
func overallConfidence(hourly []AggregatedHourlyForecast, daily []AggregatedDailyForecast) ConfidenceLevel {
	var sum float64
	var n int
	if len(hourly) > 0 {
		for _, h := range hourly {
			sum += h.Confidence.Score
			n++
		}
	} else {
		for _, d := range daily {
			sum += d.Confidence.Score
			n++
		}
	}
	if n == 0 {
		return ConfidenceLevel{Level: LevelLow}
	}
	score := sum / float64(n)
	return ConfidenceLevel{Score: score, Level: LevelFor(score)}
}
