package retry

// identity.go contains the value types shared by every component of the
// retry core: test identities, attempt results and dispositions.

import (
	"slices"
	"strings"
)

// ID is the comparable part of a TestIdentity and the key of all per-test state.
type ID struct {
	Class  string `json:"class"`
	Method string `json:"method"`
}

func (id ID) String() string {
	if id.Method == "" {
		return id.Class
	}
	return id.Class + "." + id.Method
}

// TestIdentity names a single test case together with the tags (annotation
// names) the execution engine found on it. Method tags come from the test
// itself, class tags from its enclosing class or package.
type TestIdentity struct {
	Class      string   `json:"class"`
	Method     string   `json:"method"`
	MethodTags []string `json:"method_tags,omitempty"`
	ClassTags  []string `json:"class_tags,omitempty"`
}

// NewTestIdentity returns an identity with sorted, de-duplicated tag sets.
func NewTestIdentity(class, method string, methodTags, classTags []string) TestIdentity {
	return TestIdentity{
		Class:      class,
		Method:     method,
		MethodTags: normalizeTags(methodTags),
		ClassTags:  normalizeTags(classTags),
	}
}

func (t TestIdentity) ID() ID {
	return ID{Class: t.Class, Method: t.Method}
}

func (t TestIdentity) String() string {
	return t.ID().String()
}

// Equal reports structural equality, tags included.
func (t TestIdentity) Equal(o TestIdentity) bool {
	return t.Class == o.Class &&
		t.Method == o.Method &&
		slices.Equal(normalizeTags(t.MethodTags), normalizeTags(o.MethodTags)) &&
		slices.Equal(normalizeTags(t.ClassTags), normalizeTags(o.ClassTags))
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			out = append(out, tag)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Result is the outcome kind of a single attempt.
type Result string

const (
	ResultPassed  Result = "PASSED"
	ResultFailed  Result = "FAILED"
	ResultSkipped Result = "SKIPPED"
)

func (r Result) valid() bool {
	switch r {
	case ResultPassed, ResultFailed, ResultSkipped:
		return true
	}
	return false
}

// Attempt is one execution outcome of a test.
type Attempt struct {
	// 1-based, strictly increasing per identity
	Ordinal int    `json:"ordinal"`
	Result  Result `json:"result"`
	// Failure detail is kept for reporting only and never drives decisions.
	Detail string `json:"detail,omitempty"`
}

// Disposition is the resolved status of a test after all of its attempts.
type Disposition string

const (
	DispositionPassed  Disposition = "PASSED"
	DispositionFailed  Disposition = "FAILED"
	DispositionFlaky   Disposition = "FLAKY-PASSED-AFTER-RETRY"
	DispositionSkipped Disposition = "SKIPPED"
)
