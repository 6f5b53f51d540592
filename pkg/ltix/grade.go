package ltix

import (
	"math"
	"regexp"
	"strconv"
)

// DefaultGradeIdentifier is the marker evaluators are instructed to print
// before the grade, e.g. "FINAL_GRADE: 4/5".
const DefaultGradeIdentifier = "FINAL_GRADE"

// GradeResult is a raw score and its maximum as written by the evaluator.
// Score is not required to be within [0, Max].
type GradeResult struct {
	Score float64
	Max   float64
}

// Normalized maps the result onto the [0, 1] range reported to the LMS.
// A non-positive maximum yields 0.
func (g GradeResult) Normalized() float64 {
	if g.Max <= 0 || math.IsNaN(g.Score) || math.IsNaN(g.Max) {
		return 0
	}
	return math.Min(1, math.Max(0, g.Score/g.Max))
}

// GradeExtractor finds "<identifier>[: ]<score>/<max>" in evaluator output.
type GradeExtractor struct {
	pattern *regexp.Regexp
}

// NewGradeExtractor compiles the case-insensitive pattern for identifier.
// The identifier is matched literally.
func NewGradeExtractor(identifier string) GradeExtractor {
	if identifier == "" {
		identifier = DefaultGradeIdentifier
	}
	return GradeExtractor{
		pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(identifier) + `[:\s]*(\d+(?:\.\d+)?)\s*/\s*(\d+(?:\.\d+)?)`),
	}
}

// Extract returns the first grade found in text. ok is false when the text
// holds no grade.
func (e GradeExtractor) Extract(text string) (GradeResult, bool) {
	m := e.pattern.FindStringSubmatch(text)
	if m == nil {
		return GradeResult{}, false
	}

	score, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return GradeResult{}, false
	}
	maxScore, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return GradeResult{}, false
	}

	return GradeResult{Score: score, Max: maxScore}, true
}

// ExtractGrade is a one-shot helper around NewGradeExtractor.
func ExtractGrade(text, identifier string) (GradeResult, bool) {
	return NewGradeExtractor(identifier).Extract(text)
}
