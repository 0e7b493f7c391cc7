package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandBracedPreferredOverBare(t *testing.T) {
	b := Bindings{"name": "Alice", "value": "123"}
	assert.Equal(t, "Hello Alice", Expand("Hello ${name}", b))
	assert.Equal(t, "Hello Alice", Expand("Hello $name", b))
	assert.Equal(t, "echo Alice 123", Expand("echo ${name} $value", b))
}

func TestExpandUnknownVariableLeftLiteral(t *testing.T) {
	b := Bindings{}
	assert.Equal(t, "${missing}", Expand("${missing}", b))
	assert.Equal(t, "$missing", Expand("$missing", b))
}

func TestExpandBareRespectsWordBoundary(t *testing.T) {
	b := Bindings{"name": "X"}
	// $name_with_suffix must not match $name.
	assert.Equal(t, "$name_with_suffix", Expand("$name_with_suffix", b))
}

func TestExpandNestedObjectPath(t *testing.T) {
	b := Bindings{
		"item": map[string]any{
			"user": map[string]any{"name": "Bob"},
		},
	}
	assert.Equal(t, "Hello Bob", Expand("Hello ${item.user.name}", b))
}

func TestExpandIdempotentWhenValuesHaveNoTemplateSyntax(t *testing.T) {
	b := Bindings{"name": "Alice", "value": "123"}
	template := "echo ${name} $value"
	once := Expand(template, b)
	twice := Expand(once, b)
	assert.Equal(t, once, twice)
}

func TestExtractReferencesFindsBothForms(t *testing.T) {
	refs := ExtractReferences("echo ${name} $value ${name}")
	assert.ElementsMatch(t, []string{"name", "value"}, refs)
}

func TestCaptureRegexFirstGroup(t *testing.T) {
	v, err := Capture("version: 1.2.3\n", CaptureSpec{Kind: CaptureRegex, Pattern: `version: (\S+)`})
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)
}

func TestCaptureRegexRejectsMultipleGroups(t *testing.T) {
	_, err := Capture("a b", CaptureSpec{Kind: CaptureRegex, Pattern: `(a) (b)`})
	require.Error(t, err)
}

func TestCaptureJSONPathNavigatesAndStringifies(t *testing.T) {
	v, err := Capture(`{"result":{"count":5}}`, CaptureSpec{Kind: CaptureJSONPath, Pattern: "result.count"})
	require.NoError(t, err)
	assert.Equal(t, "5", v)
}

func TestCaptureLineVerbatim(t *testing.T) {
	v, err := Capture("first\nsecond\nthird", CaptureSpec{Kind: CaptureLine, Line: 1})
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestCaptureLineOutOfRange(t *testing.T) {
	_, err := Capture("only one line", CaptureSpec{Kind: CaptureLine, Line: 5})
	require.Error(t, err)
}
