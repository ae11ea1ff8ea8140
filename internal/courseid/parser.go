// Package courseid turns free-form course references (ObjectIDs, storefront
// slugs such as "cma-final-test5mP", or arbitrary text) into structured
// search hints. Every function is pure and total: malformed input yields
// empty hints, never an error.
package courseid

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/examacademy/academy-server/internal/sliceutil"
)

// ParsedID holds the hints derived from one course reference.
type ParsedID struct {
	Original    string   `json:"original"`
	Parts       []string `json:"parts"`
	PaperNumber *int     `json:"paperNumber"`
	CourseType  string   `json:"courseType,omitempty"`
	SearchTerms []string `json:"searchTerms"`
	IsSlugified bool     `json:"isSlugified"`
	IsObjectID  bool     `json:"isObjectId"`
}

// paperRule extracts a paper number from the first capture group.
type paperRule struct {
	name    string
	pattern *regexp.Regexp
}

// courseTypeRule maps a pattern to its canonical label.
type courseTypeRule struct {
	pattern *regexp.Regexp
	label   string
}

// Rules are evaluated in order; the first match wins.
// The trailing bare-number rule picks the first digit run anywhere in the
// string, which can misfire on references that carry unrelated numbers.
// A matched digit run that overflows int means "no paper": later rules are
// not consulted, so "paper-<huge>-test5" has no paper number.
var paperRules = []paperRule{
	{name: "paper", pattern: regexp.MustCompile(`(?i)paper[-_]?(\d+)`)},
	{name: "test", pattern: regexp.MustCompile(`(?i)test(\d+)`)},
	{name: "p", pattern: regexp.MustCompile(`(?i)p[-_]?(\d+)`)},
	{name: "bare", pattern: regexp.MustCompile(`(\d+)`)},
}

var courseTypeRules = []courseTypeRule{
	{pattern: regexp.MustCompile(`(?i)cma[-_]?final`), label: "CMA Final"},
	{pattern: regexp.MustCompile(`(?i)cma[-_]?inter`), label: "CMA Inter"},
	{pattern: regexp.MustCompile(`(?i)cma[-_]?foundation`), label: "CMA Foundation"},
	{pattern: regexp.MustCompile(`(?i)ca[-_]?final`), label: "CA Final"},
	{pattern: regexp.MustCompile(`(?i)ca[-_]?inter`), label: "CA Inter"},
	{pattern: regexp.MustCompile(`(?i)ca[-_]?foundation`), label: "CA Foundation"},
	{pattern: regexp.MustCompile(`(?i)cma`), label: "CMA"},
	{pattern: regexp.MustCompile(`(?i)ca`), label: "CA"},
}

var (
	objectIDPattern   = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	termSeparator     = regexp.MustCompile(`[-_\s]+`)
	nonAlnumPattern   = regexp.MustCompile(`[^a-z0-9]+`)
	repeatedHyphens   = regexp.MustCompile(`-{2,}`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// ParseSlugID derives all hints for id.
func ParseSlugID(id string) ParsedID {
	parsed := ParsedID{
		Original:    id,
		Parts:       []string{},
		SearchTerms: []string{},
	}
	if id == "" {
		return parsed
	}

	for _, part := range strings.Split(strings.ToLower(id), "-") {
		if part != "" {
			parsed.Parts = append(parsed.Parts, part)
		}
	}
	parsed.IsObjectID = IsValidObjectID(id)
	parsed.IsSlugified = strings.Contains(id, "-")
	if n, ok := ExtractPaperNumber(id); ok {
		parsed.PaperNumber = &n
	}
	parsed.CourseType = ExtractCourseType(id)
	parsed.SearchTerms = GenerateSearchTerms(id)
	return parsed
}

// ExtractPaperNumber returns the paper number referenced by id.
func ExtractPaperNumber(id string) (int, bool) {
	for _, rule := range paperRules {
		m := rule.pattern.FindStringSubmatch(id)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// ExtractCourseType returns the canonical course-type label referenced by
// id, or "" when none is recognised.
func ExtractCourseType(id string) string {
	for _, rule := range courseTypeRules {
		if rule.pattern.MatchString(id) {
			return rule.label
		}
	}
	return ""
}

// GenerateSearchTerms returns the deduplicated text fragments worth
// searching for. Terms of one character or less are dropped.
func GenerateSearchTerms(id string) []string {
	if id == "" {
		return []string{}
	}

	lower := strings.ToLower(id)
	terms := []string{lower}

	var parts []string
	for _, p := range termSeparator.Split(lower, -1) {
		if len(p) > 1 {
			parts = append(parts, p)
		}
	}
	terms = append(terms, parts...)
	for i := 0; i+1 < len(parts); i++ {
		terms = append(terms, parts[i]+" "+parts[i+1])
	}

	if n, ok := ExtractPaperNumber(id); ok {
		num := strconv.Itoa(n)
		terms = append(terms, "paper "+num, "paper"+num, "p"+num)
	}

	if label := ExtractCourseType(id); label != "" {
		lowerLabel := strings.ToLower(label)
		terms = append(terms, lowerLabel)
		terms = append(terms, strings.Fields(lowerLabel)...)
	}

	terms = sliceutil.Filter(terms, func(t string) bool { return len(t) > 1 })
	return sliceutil.Unique(terms)
}

// IsValidObjectID reports whether id is exactly 24 hexadecimal characters.
func IsValidObjectID(id string) bool {
	return objectIDPattern.MatchString(id)
}

// NormalizeCourseType lower-cases s, folds diacritics, replaces every run of
// non-alphanumerics with a single space and trims.
func NormalizeCourseType(s string) string {
	s = nonAlnumPattern.ReplaceAllString(strings.ToLower(foldDiacritics(s)), " ")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// SlugInfo is the course data a storefront slug is built from.
type SlugInfo struct {
	CourseType  string
	Subject     string
	PaperNumber *int
}

// CreateSlug builds "<course-type>-<subject>-paper-<n>", skipping empty
// pieces and collapsing repeated hyphens.
func CreateSlug(info SlugInfo) string {
	pieces := make([]string, 0, 3)
	if s := slugify(info.CourseType); s != "" {
		pieces = append(pieces, s)
	}
	if s := slugify(info.Subject); s != "" {
		pieces = append(pieces, s)
	}
	if info.PaperNumber != nil {
		pieces = append(pieces, "paper-"+strconv.Itoa(*info.PaperNumber))
	}
	slug := repeatedHyphens.ReplaceAllString(strings.Join(pieces, "-"), "-")
	return strings.Trim(slug, "-")
}

// Slugify converts free text into a lower-case hyphenated slug.
func Slugify(s string) string {
	return slugify(s)
}

func slugify(s string) string {
	s = nonAlnumPattern.ReplaceAllString(strings.ToLower(foldDiacritics(s)), "-")
	return strings.Trim(s, "-")
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
