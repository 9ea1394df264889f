package registry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/create-to-solve/jtis/internal/model"
)

// ColumnKind classifies a schema column.
type ColumnKind string

const (
	KindNumeric     ColumnKind = "numeric"
	KindCategorical ColumnKind = "categorical"
	KindYear        ColumnKind = "year"
	KindAreaCode    ColumnKind = "area_code"
)

// Granularity is the spatial key level of a raw dataset.
type Granularity string

const (
	GranularityLAD  Granularity = "lad"
	GranularityLSOA Granularity = "lsoa"
)

// YearConvention is how a dataset labels its reporting periods.
type YearConvention string

const (
	// YearCalendar labels periods with plain calendar years ("2022").
	YearCalendar YearConvention = "calendar"
	// YearFiscalApril labels April-March periods as "2022-23". The canonical
	// table uses the starting calendar year.
	YearFiscalApril YearConvention = "fiscal_april"
)

// Column declares one expected column of a raw dataset.
type Column struct {
	Name     string     `yaml:"name"`
	Kind     ColumnKind `yaml:"kind"`
	Nullable bool       `yaml:"nullable"`
	Min      *float64   `yaml:"min"`
	Max      *float64   `yaml:"max"`

	// Indicator maps a numeric column onto a canonical indicator name.
	// Columns with no indicator are carried for validation only.
	Indicator string                  `yaml:"indicator"`
	Aggregate model.AggregationMethod `yaml:"aggregate"`
	// Scale multiplies values during harmonisation (e.g. population
	// reported in thousands carries scale 1000). Zero means 1.
	Scale float64 `yaml:"scale"`
}

// DatasetSchema is the immutable contract one raw dataset must meet.
type DatasetSchema struct {
	ID             string         `yaml:"dataset"`
	Granularity    Granularity    `yaml:"granularity"`
	YearConvention YearConvention `yaml:"year_convention"`
	// Keyed datasets must have at most one row per (area, year).
	Keyed     bool `yaml:"keyed"`
	YearRange struct {
		Min int `yaml:"min"`
		Max int `yaml:"max"`
	} `yaml:"year_range"`
	AreaColumn string   `yaml:"area_column"`
	NameColumn string   `yaml:"name_column"`
	YearColumn string   `yaml:"year_column"`
	Columns    []Column `yaml:"columns"`
}

// Static reports whether the dataset has no year dimension (published once,
// applied to every year).
func (s *DatasetSchema) Static() bool {
	return s.YearColumn == ""
}

// Column returns the declared column by name.
func (s *DatasetSchema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// IndicatorColumns returns the columns mapped to canonical indicators, in
// declaration order.
func (s *DatasetSchema) IndicatorColumns() []Column {
	var cols []Column
	for _, c := range s.Columns {
		if c.Indicator != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

func (s *DatasetSchema) check() error {
	if s.ID == "" {
		return fmt.Errorf("schema missing dataset id")
	}
	switch s.Granularity {
	case GranularityLAD, GranularityLSOA:
	default:
		return fmt.Errorf("dataset %s: unknown granularity %q", s.ID, s.Granularity)
	}
	if s.YearConvention == "" {
		s.YearConvention = YearCalendar
	}
	switch s.YearConvention {
	case YearCalendar, YearFiscalApril:
	default:
		return fmt.Errorf("dataset %s: unknown year convention %q", s.ID, s.YearConvention)
	}
	if !s.Static() && s.YearRange.Min > s.YearRange.Max {
		return fmt.Errorf("dataset %s: year range [%d, %d] is inverted", s.ID, s.YearRange.Min, s.YearRange.Max)
	}
	if s.AreaColumn == "" {
		return fmt.Errorf("dataset %s: area_column is required", s.ID)
	}

	seen := make(map[string]bool)
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("dataset %s: column with empty name", s.ID)
		}
		if seen[c.Name] {
			return fmt.Errorf("dataset %s: duplicate column %q", s.ID, c.Name)
		}
		seen[c.Name] = true

		if c.Indicator != "" {
			if c.Kind != KindNumeric {
				return fmt.Errorf("dataset %s: column %q maps to indicator %q but is not numeric", s.ID, c.Name, c.Indicator)
			}
			switch c.Aggregate {
			case model.AggSum, model.AggWeightedMean, model.AggMean, model.AggFirst:
			default:
				return fmt.Errorf("dataset %s: column %q has unknown aggregation %q", s.ID, c.Name, c.Aggregate)
			}
		}
	}
	if !seen[s.AreaColumn] {
		return fmt.Errorf("dataset %s: area_column %q not declared", s.ID, s.AreaColumn)
	}
	if !s.Static() && !seen[s.YearColumn] {
		return fmt.Errorf("dataset %s: year_column %q not declared", s.ID, s.YearColumn)
	}
	return nil
}

// ParseYear interprets a raw year cell under the dataset's convention,
// returning the calendar year the canonical table keys on.
func (s *DatasetSchema) ParseYear(value string) (int, error) {
	value = strings.TrimSpace(value)
	if s.YearConvention == YearFiscalApril {
		// "2022-23" labels April 2022 to March 2023; key on the start year.
		if start, _, ok := strings.Cut(value, "-"); ok {
			value = start
		}
	}
	year, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("unparseable year %q", value)
	}
	return year, nil
}
