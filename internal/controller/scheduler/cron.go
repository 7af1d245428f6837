// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CronExpr is a parsed five-field cron expression
// (minute hour day-of-month month day-of-week).
type CronExpr struct {
	minutes  map[int]bool
	hours    map[int]bool
	days     map[int]bool
	months   map[int]bool
	weekdays map[int]bool

	// Vixie day semantics: when both day fields are restricted a day
	// matches if either does; a starred field defers to the other.
	domStar bool
	dowStar bool
}

var cronAliases = map[string]string{
	"@hourly":   "0 * * * *",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
}

// ParseCron parses a five-field cron expression or one of the @hourly,
// @daily, @weekly, @monthly, @yearly shorthands.
func ParseCron(expr string) (*CronExpr, error) {
	expr = strings.TrimSpace(expr)
	if alias, ok := cronAliases[expr]; ok {
		expr = alias
	}

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression needs 5 fields, got %d", len(fields))
	}

	minutes, err := parseField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("minute field: %w", err)
	}
	hours, err := parseField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("hour field: %w", err)
	}
	days, err := parseField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("day field: %w", err)
	}
	months, err := parseField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("month field: %w", err)
	}
	// 7 is accepted as Sunday alongside 0.
	weekdays, err := parseField(fields[4], 0, 7)
	if err != nil {
		return nil, fmt.Errorf("weekday field: %w", err)
	}

	e := &CronExpr{
		minutes:  toSet(minutes),
		hours:    toSet(hours),
		days:     toSet(days),
		months:   toSet(months),
		weekdays: toSet(weekdays),
		domStar:  fields[2] == "*",
		dowStar:  fields[4] == "*",
	}
	if e.weekdays[7] {
		e.weekdays[0] = true
		delete(e.weekdays, 7)
	}
	return e, nil
}

// Next returns the first time strictly after from that matches the
// expression, at minute precision. The zero time means no match within
// the next five years.
func (e *CronExpr) Next(from time.Time) time.Time {
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := from.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !e.months[int(t.Month())] {
			t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
			continue
		}
		if !e.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
			continue
		}
		if !e.hours[t.Hour()] {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location()).Add(time.Hour)
			continue
		}
		if !e.minutes[t.Minute()] {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

func (e *CronExpr) dayMatches(t time.Time) bool {
	dom := e.days[t.Day()]
	dow := e.weekdays[int(t.Weekday())]
	switch {
	case e.domStar && e.dowStar:
		return true
	case e.domStar:
		return dow
	case e.dowStar:
		return dom
	default:
		return dom || dow
	}
}

// parseField expands one cron field into its sorted member values.
// Supported forms: "*", "N", "a-b", comma lists, and "/step" on any of
// those ("N/step" runs from N to max).
func parseField(field string, min, max int) ([]int, error) {
	seen := make(map[int]bool)

	for _, part := range strings.Split(field, ",") {
		base := part
		step := 1

		if idx := strings.Index(part, "/"); idx >= 0 {
			base = part[:idx]
			s, err := strconv.Atoi(part[idx+1:])
			if err != nil || s <= 0 {
				return nil, fmt.Errorf("invalid step %q", part)
			}
			step = s
		}

		lo, hi := min, max
		switch {
		case base == "*":
			// full range
		case strings.Contains(base, "-"):
			bounds := strings.SplitN(base, "-", 2)
			a, errA := strconv.Atoi(bounds[0])
			b, errB := strconv.Atoi(bounds[1])
			if errA != nil || errB != nil {
				return nil, fmt.Errorf("invalid range %q", base)
			}
			lo, hi = a, b
		default:
			n, err := strconv.Atoi(base)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q", base)
			}
			lo = n
			if step == 1 {
				hi = n
			}
		}

		if lo < min || hi > max || lo > hi {
			return nil, fmt.Errorf("value %q out of range %d-%d", base, min, max)
		}
		for v := lo; v <= hi; v += step {
			seen[v] = true
		}
	}

	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func toSet(vals []int) map[int]bool {
	set := make(map[int]bool, len(vals))
	for _, v := range vals {
		set[v] = true
	}
	return set
}
