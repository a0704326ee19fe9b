package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidationError reports every bound a quote violates, joined into one
// message, so a bad file can be diagnosed from a single log line.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, ". ")
}

// QuoteValidator checks quotes for obviously-wrong values before they are
// stored. Bounds differ per service type; use ValidatorFor.
type QuoteValidator struct {
	serviceType ServiceType

	minStartFrom time.Time
	maxStartFrom time.Time

	minTermMonths int
	maxTermMonths int

	minPrice decimal.Decimal
	maxPrice decimal.Decimal

	minMinVolume        float64
	maxMinVolume        float64
	minLimitVolume      float64
	maxLimitVolume      float64
	minVolumeDifference float64
	maxVolumeDifference float64
}

var (
	minStartFrom = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	maxStartFrom = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	electricValidator = QuoteValidator{
		serviceType:   Electric,
		minStartFrom:  minStartFrom,
		maxStartFrom:  maxStartFrom,
		minTermMonths: 1,
		maxTermMonths: 60,
		// normal range is $.03/kWh - $.25/kWh
		minPrice:            decimal.NewFromFloat(0.01),
		maxPrice:            decimal.NewFromFloat(1.00),
		minMinVolume:        0,
		maxMinVolume:        4e6,
		minLimitVolume:      10000,
		maxLimitVolume:      5e6,
		minVolumeDifference: 0,
		maxVolumeDifference: 5e6,
	}

	gasValidator = QuoteValidator{
		serviceType:   Gas,
		minStartFrom:  minStartFrom,
		maxStartFrom:  maxStartFrom,
		minTermMonths: 1,
		maxTermMonths: 60,
		// normal range is $.25/therm - $1/therm
		minPrice:            decimal.NewFromFloat(0.05),
		maxPrice:            decimal.NewFromFloat(5.00),
		minMinVolume:        0,
		maxMinVolume:        1e6,
		minLimitVolume:      2000,
		maxLimitVolume:      1e6,
		minVolumeDifference: 0,
		maxVolumeDifference: 1e6,
	}
)

// ValidatorFor returns the validator for the given service type.
func ValidatorFor(serviceType ServiceType) (QuoteValidator, error) {
	switch serviceType {
	case Electric:
		return electricValidator, nil
	case Gas:
		return gasValidator, nil
	}
	return QuoteValidator{}, fmt.Errorf("no validator for service type %q", serviceType)
}

// Validate returns a *ValidationError carrying every violated condition, or
// nil when the quote is within bounds.
func (v QuoteValidator) Validate(q *MatrixQuote) error {
	var problems []string

	if !q.StartFrom.Before(q.StartUntil) {
		problems = append(problems, fmt.Sprintf(
			"start_from %s >= start_until %s", q.StartFrom, q.StartUntil))
	}
	if q.StartFrom.Before(v.minStartFrom) || q.StartFrom.After(v.maxStartFrom) {
		problems = append(problems, fmt.Sprintf(
			"start_from outside %s..%s: %s",
			v.minStartFrom.Format("2006-01-02"), v.maxStartFrom.Format("2006-01-02"),
			q.StartFrom))
	}
	if q.TermMonths < v.minTermMonths || q.TermMonths > v.maxTermMonths {
		problems = append(problems, fmt.Sprintf(
			"expected term_months between %d and %d, found %d",
			v.minTermMonths, v.maxTermMonths, q.TermMonths))
	}
	if !q.ValidFrom.Before(q.ValidUntil) {
		problems = append(problems, fmt.Sprintf(
			"valid_from %s >= valid_until %s", q.ValidFrom, q.ValidUntil))
	}
	if q.Price.LessThan(v.minPrice) || q.Price.GreaterThan(v.maxPrice) {
		problems = append(problems, fmt.Sprintf(
			"expected price between %s and %s, found %s",
			v.minPrice, v.maxPrice, q.Price))
	}

	if q.MinVolume != nil {
		if *q.MinVolume < v.minMinVolume {
			problems = append(problems, fmt.Sprintf(
				"%s min_volume below %v: %v", v.serviceType, v.minMinVolume, *q.MinVolume))
		}
		if *q.MinVolume > v.maxMinVolume {
			problems = append(problems, fmt.Sprintf(
				"%s min_volume above %v: %v", v.serviceType, v.maxMinVolume, *q.MinVolume))
		}
	}
	if q.LimitVolume != nil {
		if *q.LimitVolume < v.minLimitVolume {
			problems = append(problems, fmt.Sprintf(
				"%s limit_volume below %v: %v", v.serviceType, v.minLimitVolume, *q.LimitVolume))
		}
		if *q.LimitVolume > v.maxLimitVolume {
			problems = append(problems, fmt.Sprintf(
				"%s limit_volume above %v: %v", v.serviceType, v.maxLimitVolume, *q.LimitVolume))
		}
	}
	if q.MinVolume != nil && q.LimitVolume != nil {
		difference := *q.LimitVolume - *q.MinVolume
		if difference < v.minVolumeDifference {
			problems = append(problems, fmt.Sprintf(
				"%s volume range difference < %v: %v",
				v.serviceType, v.minVolumeDifference, difference))
		}
		if difference > v.maxVolumeDifference {
			problems = append(problems, fmt.Sprintf(
				"%s volume range difference > %v: %v",
				v.serviceType, v.maxVolumeDifference, difference))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
