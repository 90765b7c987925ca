// Package profile parses chapter folder and page file names under the
// naming conventions used by the supported download sources.
package profile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Profile selects the naming convention of a source directory tree.
type Profile string

const (
	// TMO covers mixed layouts where chapter folders carry an explicit
	// chapter keyword ("Capitulo 012", "Chapter 12", "ch12.5").
	TMO Profile = "TMO"
	// INMANGA covers the strict "Chapter 12" folder / "001.jpg" page layout.
	INMANGA Profile = "INMANGA"
)

// Regular expressions for each profile's chapter folders and page files
var (
	tmoChapterPattern     = regexp.MustCompile(`(?i)(?:cap[ií]tulo|chapter|ch)[^\d]*(\d+)(?:\.(\d+))?`)
	inmangaChapterPattern = regexp.MustCompile(`(?i)chapter\s*0*(\d+)$`)
	pagePattern           = regexp.MustCompile(`(?i)0*(\d+)\.(jpg|jpeg|png|webp)$`)
)

// FromString resolves a profile key, case-insensitively.
func FromString(s string) (Profile, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(TMO):
		return TMO, nil
	case string(INMANGA):
		return INMANGA, nil
	}
	return "", fmt.Errorf("unknown profile %q", s)
}

// ParseError reports a folder or file name that does not match the
// active profile's pattern. Entries that fail to parse are skipped,
// not fatal.
type ParseError struct {
	Profile Profile
	Kind    string // "chapter" or "page"
	Name    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("profile %s: %s name %q does not match expected pattern", e.Profile, e.Kind, e.Name)
}

// ChapterKey is the sortable identity parsed from a chapter folder name.
// Sub carries the fractional part of decimal chapters ("012.5"); whole
// chapters sort before their sub-chapters (12 < 12.5 < 13).
type ChapterKey struct {
	Number int
	Sub    int
	HasSub bool
}

// Compare returns -1, 0 or 1 ordering k relative to other. The primary
// key is the chapter number, numeric, with the sub-index as tiebreaker.
func (k ChapterKey) Compare(other ChapterKey) int {
	if k.Number != other.Number {
		if k.Number < other.Number {
			return -1
		}
		return 1
	}
	ks, os := -1, -1
	if k.HasSub {
		ks = k.Sub
	}
	if other.HasSub {
		os = other.Sub
	}
	if ks != os {
		if ks < os {
			return -1
		}
		return 1
	}
	return 0
}

// Label formats the key for display and output naming ("012" or "012.5").
func (k ChapterKey) Label() string {
	if k.HasSub {
		return fmt.Sprintf("%03d.%d", k.Number, k.Sub)
	}
	return fmt.Sprintf("%03d", k.Number)
}

// Float renders the key as a single number for progress messages.
func (k ChapterKey) Float() float64 {
	if !k.HasSub {
		return float64(k.Number)
	}
	f, err := strconv.ParseFloat(fmt.Sprintf("%d.%d", k.Number, k.Sub), 64)
	if err != nil {
		return float64(k.Number)
	}
	return f
}

// PageKey is the sortable identity parsed from a page file name.
type PageKey struct {
	Number int
	Ext    string // lowercase, without the dot
}

// ParseChapterName parses a chapter folder name into its sort key.
func (p Profile) ParseChapterName(name string) (ChapterKey, error) {
	switch p {
	case TMO:
		m := tmoChapterPattern.FindStringSubmatch(name)
		if m == nil {
			return ChapterKey{}, &ParseError{Profile: p, Kind: "chapter", Name: name}
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			return ChapterKey{}, &ParseError{Profile: p, Kind: "chapter", Name: name}
		}
		key := ChapterKey{Number: num}
		if m[2] != "" {
			sub, err := strconv.Atoi(m[2])
			if err != nil {
				return ChapterKey{}, &ParseError{Profile: p, Kind: "chapter", Name: name}
			}
			key.Sub = sub
			key.HasSub = true
		}
		return key, nil
	case INMANGA:
		m := inmangaChapterPattern.FindStringSubmatch(strings.TrimSpace(name))
		if m == nil {
			return ChapterKey{}, &ParseError{Profile: p, Kind: "chapter", Name: name}
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			return ChapterKey{}, &ParseError{Profile: p, Kind: "chapter", Name: name}
		}
		return ChapterKey{Number: num}, nil
	}
	return ChapterKey{}, fmt.Errorf("unknown profile %q", string(p))
}

// ParsePageName parses a page file name into its numeric key. Both
// profiles use zero-padded integer file names with an image extension.
func (p Profile) ParsePageName(name string) (PageKey, error) {
	m := pagePattern.FindStringSubmatch(name)
	if m == nil {
		return PageKey{}, &ParseError{Profile: p, Kind: "page", Name: name}
	}
	num, err := strconv.Atoi(m[1])
	if err != nil {
		return PageKey{}, &ParseError{Profile: p, Kind: "page", Name: name}
	}
	return PageKey{Number: num, Ext: strings.ToLower(m[2])}, nil
}
