package retry

// filter.go contains the filter evaluator deciding which tests are eligible
// for retry.

import (
	"fmt"
	"slices"

	"github.com/gobwas/glob"
)

// FilterEvaluator decides retry eligibility from class patterns and tags.
// It is immutable and safe for concurrent use.
type FilterEvaluator struct {
	includeClasses     []glob.Glob
	excludeClasses     []glob.Glob
	includeAnnotations []string
	excludeAnnotations []string
}

// NewFilterEvaluator compiles the class patterns of f. A malformed pattern
// is a configuration error.
func NewFilterEvaluator(f Filter) (*FilterEvaluator, error) {
	include, err := compileClassPatterns(f.IncludeClasses)
	if err != nil {
		return nil, err
	}
	exclude, err := compileClassPatterns(f.ExcludeClasses)
	if err != nil {
		return nil, err
	}
	return &FilterEvaluator{
		includeClasses:     include,
		excludeClasses:     exclude,
		includeAnnotations: slices.Clone(f.IncludeAnnotationClasses),
		excludeAnnotations: slices.Clone(f.ExcludeAnnotationClasses),
	}, nil
}

// Patterns are anchored to the full qualified name and compiled without
// separators, so '*' matches across package and class boundaries.
func compileClassPatterns(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			return nil, fmt.Errorf("%w: empty class pattern", ErrConfig)
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: class pattern %q: %w", ErrConfig, p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// IsRetryEligible evaluates the identity's class name and tags.
func (f *FilterEvaluator) IsRetryEligible(id TestIdentity) bool {
	return f.IsRetryEligibleClass(id.Class, id.MethodTags, id.ClassTags)
}

// IsRetryEligibleClass applies the resolution order: class exclusion,
// annotation exclusion, class allow-list, annotation allow-list. Exclusion
// always wins over inclusion.
func (f *FilterEvaluator) IsRetryEligibleClass(className string, methodTags, classTags []string) bool {
	if f == nil {
		return true
	}
	if matchesAnyClass(f.excludeClasses, className) {
		return false
	}
	if hasAnyTag(f.excludeAnnotations, methodTags, classTags) {
		return false
	}
	if len(f.includeClasses) > 0 && !matchesAnyClass(f.includeClasses, className) {
		return false
	}
	if len(f.includeAnnotations) > 0 && !hasAnyTag(f.includeAnnotations, methodTags, classTags) {
		return false
	}
	return true
}

func matchesAnyClass(patterns []glob.Glob, className string) bool {
	for _, g := range patterns {
		if g.Match(className) {
			return true
		}
	}
	return false
}

// Method tags are checked before class tags; class tags apply to all
// methods of the class but never the other way round.
func hasAnyTag(names []string, methodTags, classTags []string) bool {
	for _, name := range names {
		if slices.Contains(methodTags, name) || slices.Contains(classTags, name) {
			return true
		}
	}
	return false
}
