package workflow

import (
	"math"
	"strings"
	"time"
)

// Status is the bucket a stage row falls into.
type Status int

const (
	// NotStarted rows have no planned date and are shown in neither bucket.
	NotStarted Status = iota
	Pending
	Completed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	default:
		return "not_started"
	}
}

// IsFilled 值去除空白后非空即视为已填写。
func IsFilled(value string) bool {
	return strings.TrimSpace(value) != ""
}

// Classify buckets a planned/actual pair.
func Classify(planned, actual string) Status {
	switch {
	case !IsFilled(planned):
		return NotStarted
	case IsFilled(actual):
		return Completed
	default:
		return Pending
	}
}

// Delay is the number of whole days between planned and actual.
// Known is false when either date is missing or could not be parsed.
type Delay struct {
	Days  int  `json:"delay_days"`
	Known bool `json:"delay_known"`
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02/01/2006",
	"02-01-2006",
}

func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ComputeDelay 计算 actual 相对 planned 的延迟天数，提前完成按 0 计。
func ComputeDelay(planned, actual string) Delay {
	if !IsFilled(planned) || !IsFilled(actual) {
		return Delay{}
	}
	p, ok := parseDate(planned)
	if !ok {
		return Delay{}
	}
	a, ok := parseDate(actual)
	if !ok {
		return Delay{}
	}
	days := int(math.Round(a.Sub(p).Hours() / 24))
	if days < 0 {
		days = 0
	}
	return Delay{Days: days, Known: true}
}
