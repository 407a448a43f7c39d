// Package services runs the daily scoring job and report rebuilds on top of
// the comparison core.
package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

var dateFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Partition is one calendar day of processed invoices.
type Partition struct {
	Year  int
	Month int
	Day   int
}

// ParseDate parses a YYYY-MM-DD date key.
func ParseDate(s string) (Partition, error) {
	if !dateFormat.MatchString(s) {
		return Partition{}, eris.Errorf("services: date %q must be YYYY-MM-DD", s)
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Partition{}, eris.Wrapf(err, "services: invalid date %q", s)
	}
	return partitionOf(t), nil
}

// Today returns the partition containing now in loc.
func Today(loc *time.Location, now time.Time) Partition {
	if loc == nil {
		loc = time.UTC
	}
	return partitionOf(now.In(loc))
}

// ResolveDate parses arg, or falls back to today in loc when arg is empty.
func ResolveDate(arg string, loc *time.Location) (Partition, error) {
	if arg == "" {
		return Today(loc, time.Now()), nil
	}
	return ParseDate(arg)
}

func partitionOf(t time.Time) Partition {
	return Partition{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// String formats the partition as its date key.
func (p Partition) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", p.Year, p.Month, p.Day)
}

// Expand fills the {yyyy}, {mm} and {dd} placeholders of tpl.
func (p Partition) Expand(tpl string) string {
	return strings.NewReplacer(
		"{yyyy}", fmt.Sprintf("%04d", p.Year),
		"{mm}", fmt.Sprintf("%02d", p.Month),
		"{dd}", fmt.Sprintf("%02d", p.Day),
	).Replace(tpl)
}
