package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ScheduleSpec is a recurring-time specification: a time of day plus a set
// of weekdays (0 = Sunday .. 6 = Saturday). Its canonical textual form is a
// 5-field cron expression with fixed day-of-month/month wildcards, which is
// also how it appears in the persisted scenario document.
type ScheduleSpec struct {
	Minute int   `json:"minute"`
	Hour   int   `json:"hour"`
	Days   []int `json:"days_of_week"`
}

// Validate checks field ranges. An empty day set would describe a schedule
// that never fires and is rejected rather than silently accepted.
func (s ScheduleSpec) Validate() error {
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("minute out of range: %d", s.Minute)
	}
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("hour out of range: %d", s.Hour)
	}
	if len(s.Days) == 0 {
		return fmt.Errorf("schedule must include at least one day of week")
	}
	for _, d := range s.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("day of week out of range: %d", d)
		}
	}
	return nil
}

// Cron returns the canonical cron form, e.g. "0 9 * * 1,2,3,4,5".
// Days are emitted sorted and deduplicated.
func (s ScheduleSpec) Cron() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	seen := make(map[int]bool, len(s.Days))
	days := make([]int, 0, len(s.Days))
	for _, d := range s.Days {
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Ints(days)

	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}

	return fmt.Sprintf("%d %d * * %s", s.Minute, s.Hour, strings.Join(parts, ",")), nil
}

// ParseCron parses the canonical cron form back into a ScheduleSpec.
// Only the subset emitted by Cron is accepted: literal minute and hour,
// "*" for day-of-month and month, and a comma list for day-of-week.
func ParseCron(expr string) (ScheduleSpec, error) {
	var spec ScheduleSpec

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return spec, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	minute, err := strconv.Atoi(fields[0])
	if err != nil {
		return spec, fmt.Errorf("invalid minute field %q: %w", fields[0], err)
	}

	hour, err := strconv.Atoi(fields[1])
	if err != nil {
		return spec, fmt.Errorf("invalid hour field %q: %w", fields[1], err)
	}

	if fields[2] != "*" || fields[3] != "*" {
		return spec, fmt.Errorf("day-of-month and month must be wildcards, got %q %q", fields[2], fields[3])
	}

	var days []int
	for _, part := range strings.Split(fields[4], ",") {
		d, err := strconv.Atoi(part)
		if err != nil {
			return spec, fmt.Errorf("invalid day-of-week %q: %w", part, err)
		}
		days = append(days, d)
	}

	spec = ScheduleSpec{Minute: minute, Hour: hour, Days: days}
	if err := spec.Validate(); err != nil {
		return ScheduleSpec{}, err
	}
	return spec, nil
}

// IsZero reports whether no schedule has been set yet. Freshly created
// scenarios carry a zero schedule until the user picks one.
func (s ScheduleSpec) IsZero() bool {
	return s.Minute == 0 && s.Hour == 0 && len(s.Days) == 0
}

// MarshalJSON emits the cron string, the persisted wire form of a schedule.
// A zero schedule marshals as the empty string.
func (s ScheduleSpec) MarshalJSON() ([]byte, error) {
	if s.IsZero() {
		return json.Marshal("")
	}
	expr, err := s.Cron()
	if err != nil {
		return nil, err
	}
	return json.Marshal(expr)
}

// UnmarshalJSON accepts the cron string wire form
func (s *ScheduleSpec) UnmarshalJSON(data []byte) error {
	var expr string
	if err := json.Unmarshal(data, &expr); err != nil {
		return err
	}
	if expr == "" {
		*s = ScheduleSpec{}
		return nil
	}
	spec, err := ParseCron(expr)
	if err != nil {
		return err
	}
	*s = spec
	return nil
}
