// Package planner partitions the ordered, enabled chapter sequence into
// contiguous volume plans.
package planner

import (
	"fmt"

	"manga-optimizer/internal/index"
	"manga-optimizer/internal/util"
)

// ConfigError reports invalid planning parameters. It aborts before any
// processing begins.
type ConfigError struct {
	Field  string
	Value  int
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s (%d): %s", e.Field, e.Value, e.Reason)
}

// Options parameterizes a planning pass.
type Options struct {
	// ChaptersPerVolume is the maximum chapters per volume. Must be > 0.
	ChaptersPerVolume int
	// StartVolume offsets output numbering so later chapters can continue
	// an existing run of files (v07, v08, ...). Defaults to 1.
	StartVolume int
	// Series is the output series title. Sanitized for filesystem use.
	Series string
}

// VolumePlan is one contiguous run of enabled chapters bound for a
// single output file.
type VolumePlan struct {
	Number   int             `json:"number"`
	BaseName string          `json:"base_name"`
	Chapters []index.Chapter `json:"chapters"`
}

// PageCount returns the total pages across the plan's chapters.
func (v VolumePlan) PageCount() int {
	total := 0
	for _, ch := range v.Chapters {
		total += ch.PageCount()
	}
	return total
}

// Plan partitions chapters into contiguous volumes of at most
// ChaptersPerVolume each, in the order given; the final volume may be
// smaller. Disabled chapters are dropped without disturbing the order of
// the rest. Planning is pure: the same input always yields the same plan.
func Plan(chapters []index.Chapter, opts Options) ([]VolumePlan, error) {
	if opts.ChaptersPerVolume <= 0 {
		return nil, &ConfigError{Field: "chaptersPerVolume", Value: opts.ChaptersPerVolume, Reason: "must be positive"}
	}
	start := opts.StartVolume
	if start == 0 {
		start = 1
	}
	if start < 1 {
		return nil, &ConfigError{Field: "startVolume", Value: opts.StartVolume, Reason: "must be at least 1"}
	}

	var enabled []index.Chapter
	for _, ch := range chapters {
		if ch.Enabled {
			enabled = append(enabled, ch)
		}
	}

	series := util.SanitizeSeriesName(opts.Series)
	if series == "" {
		series = "Manga"
	}

	var plans []VolumePlan
	for i := 0; i < len(enabled); i += opts.ChaptersPerVolume {
		end := i + opts.ChaptersPerVolume
		if end > len(enabled) {
			end = len(enabled)
		}
		num := start + len(plans)
		plans = append(plans, VolumePlan{
			Number:   num,
			BaseName: fmt.Sprintf("%s - v%02d", series, num),
			Chapters: enabled[i:end],
		})
	}
	return plans, nil
}
