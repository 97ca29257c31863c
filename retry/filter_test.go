package retry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterEvaluator_IsRetryEligibleClass(t *testing.T) {
	tests := []struct {
		name       string
		filter     Filter
		class      string
		methodTags []string
		classTags  []string
		want       bool
	}{
		{
			name:  "empty filter retries everything",
			class: "github.com/acme/shop/cart",
			want:  true,
		},
		{
			name:   "excluded class",
			filter: Filter{ExcludeClasses: []string{"github.com/acme/shop/*"}},
			class:  "github.com/acme/shop/cart",
			want:   false,
		},
		{
			name:   "glob is anchored to the full name",
			filter: Filter{ExcludeClasses: []string{"shop/*"}},
			class:  "github.com/acme/shop/cart",
			want:   true,
		},
		{
			name:   "wildcard spans separators",
			filter: Filter{IncludeClasses: []string{"*.integration.*"}},
			class:  "org.acme.integration.db.UserRepositoryTest",
			want:   true,
		},
		{
			name:   "include list acts as allow-list",
			filter: Filter{IncludeClasses: []string{"org.acme.api.*"}},
			class:  "org.acme.db.QueryTest",
			want:   false,
		},
		{
			name: "exclusion overrides inclusion",
			filter: Filter{
				IncludeClasses: []string{"org.acme.*"},
				ExcludeClasses: []string{"org.acme.db.*"},
			},
			class: "org.acme.db.QueryTest",
			want:  false,
		},
		{
			name:       "excluded method annotation",
			filter:     Filter{ExcludeAnnotationClasses: []string{"Flaky"}},
			class:      "org.acme.Test",
			methodTags: []string{"Flaky"},
			want:       false,
		},
		{
			name:      "excluded class annotation applies to methods",
			filter:    Filter{ExcludeAnnotationClasses: []string{"org.acme.Quarantined"}},
			class:     "org.acme.Test",
			classTags: []string{"org.acme.Quarantined"},
			want:      false,
		},
		{
			name: "annotation exclusion overrides annotation inclusion",
			filter: Filter{
				IncludeAnnotationClasses: []string{"Retryable"},
				ExcludeAnnotationClasses: []string{"Flaky"},
			},
			class:      "org.acme.Test",
			methodTags: []string{"Retryable"},
			classTags:  []string{"Flaky"},
			want:       false,
		},
		{
			name:       "included annotation on method",
			filter:     Filter{IncludeAnnotationClasses: []string{"Retryable"}},
			class:      "org.acme.Test",
			methodTags: []string{"Retryable"},
			want:       true,
		},
		{
			name:      "included annotation inherited from class",
			filter:    Filter{IncludeAnnotationClasses: []string{"Retryable"}},
			class:     "org.acme.Test",
			classTags: []string{"Retryable"},
			want:      true,
		},
		{
			name:   "annotation allow-list without match",
			filter: Filter{IncludeAnnotationClasses: []string{"Retryable"}},
			class:  "org.acme.Test",
			want:   false,
		},
		{
			name:       "annotations match by full name only",
			filter:     Filter{ExcludeAnnotationClasses: []string{"Flaky"}},
			class:      "org.acme.Test",
			methodTags: []string{"org.acme.Flaky"},
			want:       true,
		},
		{
			name: "class allow-list checked before annotation allow-list",
			filter: Filter{
				IncludeClasses:           []string{"org.acme.api.*"},
				IncludeAnnotationClasses: []string{"Retryable"},
			},
			class:      "org.acme.db.Test",
			methodTags: []string{"Retryable"},
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilterEvaluator(tt.filter)
			require.NoError(t, err)
			require.Equal(t, tt.want, f.IsRetryEligibleClass(tt.class, tt.methodTags, tt.classTags))
			require.Equal(t, tt.want, f.IsRetryEligible(NewTestIdentity(tt.class, "TestX", tt.methodTags, tt.classTags)))
		})
	}
}

func TestNewFilterEvaluator_InvalidPattern(t *testing.T) {
	_, err := NewFilterEvaluator(Filter{IncludeClasses: []string{"org.acme.[abc"}})
	require.ErrorIs(t, err, ErrConfig)

	_, err = NewFilterEvaluator(Filter{ExcludeClasses: []string{""}})
	require.ErrorIs(t, err, ErrConfig)
}

func TestFilterEvaluator_NilEvaluatesEverythingEligible(t *testing.T) {
	var f *FilterEvaluator
	require.True(t, f.IsRetryEligibleClass("any", nil, nil))
}
