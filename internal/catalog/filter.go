package catalog

import "strings"

// Filter narrows recommendation results by record attributes. The zero value
// matches every record.
type Filter struct {
	TestTypes          []string `mapstructure:"test_types" json:"test_types,omitempty"`
	RemoteOnly         bool     `mapstructure:"remote_only" json:"remote_only,omitempty"`
	AdaptiveOnly       bool     `mapstructure:"adaptive_only" json:"adaptive_only,omitempty"`
	MaxDurationMinutes int      `mapstructure:"max_duration_minutes" json:"max_duration_minutes,omitempty"`
}

// Matches reports whether the record satisfies every criterion of the filter.
func (f *Filter) Matches(rec *AssessmentRecord) bool {
	if f == nil {
		return true
	}
	if f.RemoteOnly && !rec.RemoteTesting {
		return false
	}
	if f.AdaptiveOnly && !rec.Adaptive {
		return false
	}
	if f.MaxDurationMinutes > 0 && rec.DurationMinutes > f.MaxDurationMinutes {
		return false
	}
	if len(f.TestTypes) > 0 {
		match := false
		for _, tt := range f.TestTypes {
			if strings.EqualFold(strings.TrimSpace(tt), rec.TestType) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}
