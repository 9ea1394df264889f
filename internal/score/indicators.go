// Package score derives normalised sub-indicators from the canonical table
// and combines them into the composite Just Transition Index.
package score

import (
	"math"

	"github.com/create-to-solve/jtis/internal/model"
)

// Derived metric names. These are intermediate per-row quantities computed
// from canonical values before normalisation.
const (
	MetricEmissionsPerCapita = "emissions_pc_tco2"
	MetricEmissionsDensity   = "emissions_density_tco2_per_km2"
	MetricEmissionsYoY       = "emissions_yoy_pct"
	MetricFuelPerCapita      = "fuel_pc_ktoe_per_1000"
	MetricFuelYoY            = "fuel_yoy_pct"
	MetricFreightShare       = "freight_share"
	MetricPersonalShare      = "personal_share"
	MetricBioenergyShare     = "bioenergy_share"
	MetricPopulationYoY      = "population_yoy_abs"
	MetricDeprivation        = "imd_score"
)

// Definition declares one sub-indicator: which derived metric feeds it, how
// it is normalised, and whether its direction is inverted so that a higher
// indicator always means more transition pressure.
type Definition struct {
	Name   string
	Metric string
	Method model.NormalisationMethod
	// Invert flips direction: IMD ranks fall as deprivation rises, and more
	// bioenergy means less pressure, so both invert.
	Invert bool
}

// Definitions returns the standard sub-indicator set under the requested
// normalisation method.
func Definitions(method model.NormalisationMethod) []Definition {
	return []Definition{
		{Name: "emissions_intensity", Metric: MetricEmissionsPerCapita, Method: method},
		{Name: "emissions_density", Metric: MetricEmissionsDensity, Method: method},
		{Name: "emissions_trend", Metric: MetricEmissionsYoY, Method: method},
		{Name: "transport_intensity", Metric: MetricFuelPerCapita, Method: method},
		{Name: "transport_trend", Metric: MetricFuelYoY, Method: method},
		{Name: "freight_dependence", Metric: MetricFreightShare, Method: method},
		{Name: "personal_dependence", Metric: MetricPersonalShare, Method: method},
		{Name: "bioenergy_uptake", Metric: MetricBioenergyShare, Method: method, Invert: true},
		{Name: "population_volatility", Metric: MetricPopulationYoY, Method: method},
		{Name: "deprivation", Metric: MetricDeprivation, Method: method, Invert: true},
	}
}

// deriveMetrics computes the per-row quantities the indicators are built on.
// A metric whose inputs are missing (or whose denominator is zero) is simply
// absent: missingness propagates, it is never imputed.
func deriveMetrics(row *model.CanonicalRow) map[string]float64 {
	metrics := make(map[string]float64)

	emissions, hasEmissions := row.Value(model.IndicatorEmissions)
	population, hasPop := row.Value(model.IndicatorPopulation)
	fuel, hasFuel := row.Value(model.IndicatorFuel)
	area, hasArea := row.Value(model.IndicatorArea)

	if hasEmissions && hasPop && population > 0 {
		// kt CO2e to tonnes per person.
		metrics[MetricEmissionsPerCapita] = emissions * 1000.0 / population
	}
	if hasFuel && hasPop && population > 0 {
		metrics[MetricFuelPerCapita] = fuel * 1000.0 / population
	}
	if hasFuel && fuel > 0 {
		if freight, ok := row.Value(model.IndicatorFreight); ok {
			metrics[MetricFreightShare] = freight / fuel
		}
		if personal, ok := row.Value(model.IndicatorPersonal); ok {
			metrics[MetricPersonalShare] = personal / fuel
		}
		if bio, ok := row.Value(model.IndicatorBioenergy); ok {
			metrics[MetricBioenergyShare] = bio / fuel
		}
	}
	if hasEmissions && hasArea && area > 0 {
		metrics[MetricEmissionsDensity] = emissions * 1000.0 / area
	}
	if imd, ok := row.Value(model.IndicatorDeprivation); ok {
		metrics[MetricDeprivation] = imd
	}
	return metrics
}

// deriveChanges computes year-on-year change metrics per LAD. Rows arrive in
// (LAD, year) order, so each row's predecessor is the LAD's previous observed
// year. A LAD's first year has no change metrics; missingness propagates.
func deriveChanges(rows []*model.CanonicalRow, metrics []map[string]float64) {
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if prev.LADCode != cur.LADCode {
			continue
		}
		if v, ok := yoyChange(prev, cur, model.IndicatorEmissions); ok {
			metrics[i][MetricEmissionsYoY] = v
		}
		if v, ok := yoyChange(prev, cur, model.IndicatorFuel); ok {
			metrics[i][MetricFuelYoY] = v
		}
		// Population volatility is direction-agnostic: rapid growth and rapid
		// decline both strain a district's transition capacity.
		if v, ok := yoyChange(prev, cur, model.IndicatorPopulation); ok {
			metrics[i][MetricPopulationYoY] = math.Abs(v)
		}
	}
}

func yoyChange(prev, cur *model.CanonicalRow, indicator string) (float64, bool) {
	p, okPrev := prev.Value(indicator)
	c, okCur := cur.Value(indicator)
	if !okPrev || !okCur || p == 0 {
		return 0, false
	}
	return (c - p) / p, true
}

// Build derives the indicator set for every canonical row. Normalisation
// parameters are computed per year across all LADs present that year, so an
// indicator reflects a LAD's position among its peers in the same year
// rather than against a pooled history.
func Build(table *model.CanonicalTable, defs []Definition) []*model.IndicatorSet {
	rows := table.Rows()

	metrics := make([]map[string]float64, len(rows))
	for i, row := range rows {
		metrics[i] = deriveMetrics(row)
	}
	deriveChanges(rows, metrics)

	sets := make([]*model.IndicatorSet, len(rows))
	for i, row := range rows {
		sets[i] = &model.IndicatorSet{
			LADCode:    row.LADCode,
			Year:       row.Year,
			Indicators: make(map[string]float64),
			Methods:    make(map[string]model.NormalisationMethod),
		}
	}

	for _, def := range defs {
		// Group metric values cross-sectionally by year.
		byYear := make(map[int][]float64)
		for i, row := range rows {
			if v, ok := metrics[i][def.Metric]; ok {
				byYear[row.Year] = append(byYear[row.Year], v)
			}
		}

		params := make(map[int]normParams)
		for year, values := range byYear {
			params[year] = fitNorm(values, def.Method)
		}

		for i, row := range rows {
			v, ok := metrics[i][def.Metric]
			if !ok {
				continue
			}
			norm := params[row.Year].apply(v, def.Method)
			if def.Invert {
				norm = invert(norm, def.Method)
			}
			sets[i].Indicators[def.Name] = norm
			sets[i].Methods[def.Name] = def.Method
		}
	}
	return sets
}

type normParams struct {
	min, max float64
	mean, sd float64
	constant bool
}

func fitNorm(values []float64, method model.NormalisationMethod) normParams {
	p := normParams{min: math.Inf(1), max: math.Inf(-1)}
	var sum float64
	for _, v := range values {
		p.min = math.Min(p.min, v)
		p.max = math.Max(p.max, v)
		sum += v
	}
	n := float64(len(values))
	if n == 0 {
		p.constant = true
		return p
	}
	p.mean = sum / n

	var ss float64
	for _, v := range values {
		d := v - p.mean
		ss += d * d
	}
	p.sd = math.Sqrt(ss / n)

	if method == model.NormZScore {
		p.constant = p.sd == 0
	} else {
		p.constant = p.max == p.min
	}
	return p
}

// apply scales one value with the year's fitted parameters. A constant (or
// single-LAD) year slice carries no cross-sectional information, so every
// present value maps to the neutral midpoint.
func (p normParams) apply(v float64, method model.NormalisationMethod) float64 {
	if p.constant {
		if method == model.NormZScore {
			return 0
		}
		return 0.5
	}
	if method == model.NormZScore {
		return (v - p.mean) / p.sd
	}
	return (v - p.min) / (p.max - p.min)
}

func invert(v float64, method model.NormalisationMethod) float64 {
	if method == model.NormZScore {
		return -v
	}
	return 1 - v
}
