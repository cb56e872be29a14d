package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Miguel-Alzate/modr/internal/model"
)

const (
	MaxSearchLength = 100
	DefaultPage     = 1
	DefaultLimit    = 20
	MaxLimit        = 100
)

var searchStripper = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "", "`", "")

// SanitizeSearch strips markup and quote characters and caps the length.
func SanitizeSearch(s string) string {
	s = strings.TrimSpace(searchStripper.Replace(s))
	if utf8.RuneCountInString(s) > MaxSearchLength {
		s = string([]rune(s)[:MaxSearchLength])
	}
	return s
}

// ParsePagination applies defaults to empty values and rejects anything
// outside page >= 1 and 1 <= limit <= MaxLimit.
func ParsePagination(page, limit string) (model.Pagination, []string) {
	p := model.Pagination{Page: DefaultPage, Limit: DefaultLimit}
	var problems []string
	if page = strings.TrimSpace(page); page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			problems = append(problems, fmt.Sprintf("invalid page %q: must be a positive integer", page))
		} else {
			p.Page = n
		}
	}
	if limit = strings.TrimSpace(limit); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > MaxLimit {
			problems = append(problems, fmt.Sprintf("invalid limit %q: must be between 1 and %d", limit, MaxLimit))
		} else {
			p.Limit = n
		}
	}
	return p, problems
}

// ParseDateRange parses optional bounds. A date-only upper bound covers the
// whole day.
func ParseDateRange(from, to string) (*time.Time, *time.Time, []string) {
	var problems []string
	var fromPtr, toPtr *time.Time
	if from = strings.TrimSpace(from); from != "" {
		t, _, err := parseTime(from)
		if err != nil {
			problems = append(problems, fmt.Sprintf("invalid from %q: %v", from, err))
		} else {
			fromPtr = &t
		}
	}
	if to = strings.TrimSpace(to); to != "" {
		t, dateOnly, err := parseTime(to)
		if err != nil {
			problems = append(problems, fmt.Sprintf("invalid to %q: %v", to, err))
		} else {
			if dateOnly {
				t = t.Add(24*time.Hour - time.Nanosecond)
			}
			toPtr = &t
		}
	}
	if fromPtr != nil && toPtr != nil && fromPtr.After(*toPtr) {
		problems = append(problems, "from must not be after to")
	}
	return fromPtr, toPtr, problems
}

func parseTime(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), true, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), false, nil
	}
	return time.Time{}, false, fmt.Errorf("invalid time format")
}

// ParseDays reads a positive day count used by retention operations.
func ParseDays(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 || n > 3650 {
		return 0, fmt.Errorf("invalid days %q: must be between 1 and 3650", raw)
	}
	return n, nil
}

// ParseStatusCode reads and range-checks a status code parameter.
func ParseStatusCode(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid status code %q", raw)
	}
	if err := ValidateStatusCode(n); err != nil {
		return 0, err
	}
	return n, nil
}
