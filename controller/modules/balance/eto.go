package balance

import (
	"time"
)

// ETSource provides reference evapotranspiration for a calendar day, in
// inches. Real-time weather retrieval lives outside this module; the
// engine only consumes this interface.
type ETSource interface {
	ETo(day time.Time) (float64, error)
}

// ReferenceET is the historical fallback table: monthly ETo totals in
// inches, spread evenly over the days of each month.
type ReferenceET struct {
	Monthly [12]float64
}

// NewReferenceET returns a table following a typical inland-California
// annual curve.
func NewReferenceET() *ReferenceET {
	return &ReferenceET{
		Monthly: [12]float64{
			1.86, 1.98, 3.10, 4.50, 5.89, 6.90,
			7.44, 6.82, 5.40, 3.72, 2.40, 1.86,
		},
	}
}

func (r *ReferenceET) ETo(day time.Time) (float64, error) {
	days := daysIn(day.Year(), day.Month())
	return r.Monthly[day.Month()-1] / float64(days), nil
}

// Fallback consults a primary source and degrades to the reference
// table for days the primary can not answer.
type Fallback struct {
	Primary   ETSource
	Reference ETSource
}

func (f *Fallback) ETo(day time.Time) (float64, error) {
	if f.Primary != nil {
		if v, err := f.Primary.ETo(day); err == nil {
			return v, nil
		}
	}
	return f.Reference.ETo(day)
}

func daysIn(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
