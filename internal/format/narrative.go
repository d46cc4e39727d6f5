package format

import (
	"fmt"
	"math"
	"strings"

	"github.com/meteomancer/weatheroracle/internal/consensus"
	"github.com/meteomancer/weatheroracle/internal/geocode"
	"github.com/meteomancer/weatheroracle/internal/pipeline"
)

// Narrative renders a short plain-language summary of the consensus.
// The text is adapter-owned: nothing downstream parses it, and it is
// deterministic for a fixed result.
func Narrative(result *pipeline.Result, u Units) string {
	agg := result.Forecast
	labels := labelsFor(u)

	var b strings.Builder
	contributing := agg.ContributingModels
	fmt.Fprintf(&b, "Consensus of %d %s (%s) for %s",
		len(contributing), pluralModels(len(contributing)),
		strings.Join(contributing, ", "), placeName(result.Location.Resolved))
	if len(agg.FailedModels) > 0 {
		fmt.Fprintf(&b, "; %s did not respond", joinFailedModels(agg.FailedModels))
	}
	b.WriteString(". ")

	if len(agg.Daily) > 0 {
		writeDaySentence(&b, "Today", agg.Daily[0], u, labels)
		if len(agg.Daily) > 1 {
			writeDaySentence(&b, "Tomorrow", agg.Daily[1], u, labels)
		}
	}

	writeConfidenceSentence(&b, agg)
	return b.String()
}

func placeName(r geocode.Result) string {
	if r.Country != "" {
		return r.Name + ", " + r.Country
	}
	return r.Name
}

func pluralModels(n int) string {
	if n == 1 {
		return "model"
	}
	return "models"
}

func joinFailedModels(failed []consensus.FailedModel) string {
	ids := make([]string, len(failed))
	for i, f := range failed {
		ids[i] = f.ModelID
	}
	return strings.Join(ids, ", ")
}

func writeDaySentence(b *strings.Builder, label string, day consensus.AggregatedDailyForecast, u Units, labels unitLabels) {
	fc := day.Forecast
	fmt.Fprintf(b, "%s: %s, high %.0f%s, low %.0f%s",
		label, fc.WeatherCode.Description(),
		Temperature(fc.TemperatureRange.Max, u), labels.Temp,
		Temperature(fc.TemperatureRange.Min, u), labels.Temp)
	if day.PrecipChance >= 5 {
		fmt.Fprintf(b, ", %.0f%% chance of precipitation", day.PrecipChance)
	}
	if speed := WindSpeed(fc.Wind.MaxSpeed, u); speed >= 1 {
		fmt.Fprintf(b, ", wind %s up to %.0f %s", fc.Wind.Direction.Cardinal(), speed, labels.Wind)
	}
	b.WriteString(". ")
}

func writeConfidenceSentence(b *strings.Builder, agg *consensus.AggregatedForecast) {
	c := agg.OverallConfidence
	fmt.Fprintf(b, "Confidence is %s (%.2f)", c.Level, c.Score)
	if c.Level != consensus.LevelHigh {
		if detail := weakestFactorDetail(agg); detail != "" {
			b.WriteString(": " + detail)
		}
	}
	b.WriteString(".")
}

// weakestFactorDetail surfaces the lowest-scoring factor behind the first
// consensus day so a medium or low rating explains itself. The overall
// level is a plain average and carries no factors of its own.
func weakestFactorDetail(agg *consensus.AggregatedForecast) string {
	var factors []consensus.ConfidenceFactor
	switch {
	case len(agg.Daily) > 0:
		factors = agg.Daily[0].Confidence.Factors
	case len(agg.Hourly) > 0:
		factors = agg.Hourly[0].Confidence.Factors
	}

	detail, lowest := "", math.Inf(1)
	for _, f := range factors {
		if f.Detail != "" && f.Score < lowest {
			lowest, detail = f.Score, f.Detail
		}
	}
	return detail
}
