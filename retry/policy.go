package retry

// policy.go contains the retry policy and its loading and validation.

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

// Policy configures retries for a run. It is read-only once the run starts.
// The zero value disables retries.
type Policy struct {
	// Maximum number of retries per test; 0 disables retrying.
	MaxRetries int `yaml:"max_retries" json:"max_retries" validate:"gte=0"`
	// Number of distinct failing tests after which no more retries are
	// issued; 0 means unlimited.
	MaxFailures int `yaml:"max_failures" json:"max_failures" validate:"gte=0"`
	// Fail the run when a test only passed after being retried.
	FailOnPassedAfterRetry bool   `yaml:"fail_on_passed_after_retry" json:"fail_on_passed_after_retry"`
	Filter                 Filter `yaml:"filter" json:"filter"`
}

// Filter holds the patterns deciding which tests may be retried.
type Filter struct {
	// Glob patterns over the qualified class name.
	IncludeClasses []string `yaml:"include_classes" json:"include_classes,omitempty" validate:"dive,required"`
	ExcludeClasses []string `yaml:"exclude_classes" json:"exclude_classes,omitempty" validate:"dive,required"`
	// Fully qualified annotation (tag) names.
	IncludeAnnotationClasses []string `yaml:"include_annotation_classes" json:"include_annotation_classes,omitempty" validate:"dive,required"`
	ExcludeAnnotationClasses []string `yaml:"exclude_annotation_classes" json:"exclude_annotation_classes,omitempty" validate:"dive,required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the policy, including that every class pattern compiles.
func (p Policy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if _, err := NewFilterEvaluator(p.Filter); err != nil {
		return err
	}
	return nil
}

// Enabled reports whether any test can be retried under this policy.
func (p Policy) Enabled() bool {
	return p.MaxRetries > 0
}

// LoadPolicyFile decodes a YAML policy file on top of base. Keys missing
// from the file keep the value from base.
func LoadPolicyFile(path string, base Policy) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("%w: failed to read policy file: %w", ErrConfig, err)
	}
	return ParsePolicy(data, base)
}

// ParsePolicy decodes YAML policy data on top of base and validates the result.
func ParsePolicy(data []byte, base Policy) (Policy, error) {
	policy := base
	if err := yaml.UnmarshalWithOptions(data, &policy, yaml.Strict()); err != nil {
		return Policy{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}
