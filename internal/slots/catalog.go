package slots

import (
	"errors"
	"fmt"
	"time"
)

const labelLayout = "15:04"

// Default business hours: 08:00 to 18:00 (end exclusive) in 30 minute steps.
const (
	DefaultStartHour   = 8
	DefaultEndHour     = 18
	DefaultStepMinutes = 30
)

var (
	ErrInvalidHours = errors.New("start hour must be before end hour and both within 0..24")
	ErrInvalidStep  = errors.New("step must be a positive number of minutes")
)

// Catalog is the ordered set of bookable time-of-day labels for a business day.
type Catalog struct {
	startHour   int
	endHour     int
	stepMinutes int
	labels      []string
	index       map[string]int
}

// Generate returns the "HH:MM" labels from startHour (inclusive) to endHour
// (exclusive) every stepMinutes, in ascending order.
func Generate(startHour, endHour, stepMinutes int) ([]string, error) {
	if startHour < 0 || endHour > 24 || startHour >= endHour {
		return nil, ErrInvalidHours
	}
	if stepMinutes <= 0 {
		return nil, ErrInvalidStep
	}

	var labels []string
	for m := startHour * 60; m < endHour*60; m += stepMinutes {
		labels = append(labels, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return labels, nil
}

// NewCatalog builds a catalog for the given business hours.
func NewCatalog(startHour, endHour, stepMinutes int) (*Catalog, error) {
	labels, err := Generate(startHour, endHour, stepMinutes)
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(labels))
	for i, l := range labels {
		idx[l] = i
	}

	return &Catalog{
		startHour:   startHour,
		endHour:     endHour,
		stepMinutes: stepMinutes,
		labels:      labels,
		index:       idx,
	}, nil
}

// Default returns the 08:00-18:00 / 30 minute catalog.
func Default() *Catalog {
	c, err := NewCatalog(DefaultStartHour, DefaultEndHour, DefaultStepMinutes)
	if err != nil {
		panic("default slot catalog: " + err.Error())
	}
	return c
}

// Labels returns a copy of the catalog labels.
func (c *Catalog) Labels() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

func (c *Catalog) Contains(label string) bool {
	_, ok := c.index[label]
	return ok
}

func (c *Catalog) Len() int { return len(c.labels) }

func (c *Catalog) StartHour() int { return c.startHour }
func (c *Catalog) EndHour() int { return c.endHour }
func (c *Catalog) StepMinutes() int { return c.stepMinutes }

// Label formats the time-of-day of t as a slot label.
func Label(t time.Time) string {
	return t.Format(labelLayout)
}

// Combine places the wall-clock slot label on the calendar day of date,
// in date's location.
func Combine(date time.Time, label string) (time.Time, error) {
	tod, err := time.Parse(labelLayout, label)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot label %q: %w", label, err)
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, tod.Hour(), tod.Minute(), 0, 0, date.Location()), nil
}
