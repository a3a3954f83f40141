package task

import (
	"strconv"
	"strings"
)

// Priority of a result report, a lower value is a higher priority.
type Priority int

const (
	PriorityCritical Priority = 10
	PriorityHigh     Priority = 20
	PriorityMedium   Priority = 50
	PriorityLow      Priority = 80
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	default:
		return strconv.Itoa(int(p))
	}
}

// ParsePriority accepts a name, for example "high", or a number.
func ParsePriority(s string) (Priority, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL":
		return PriorityCritical, true
	case "HIGH":
		return PriorityHigh, true
	case "MEDIUM":
		return PriorityMedium, true
	case "LOW":
		return PriorityLow, true
	}
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && v >= 0 && v <= 100 {
		return Priority(v), true
	}
	return 0, false
}
