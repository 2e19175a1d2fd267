package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  42  ":       "42",
		"a\r\nb\r\n":   "a\nb",
		"a\rb":         "a\nb",
		"\n\nline\n\t": "line",
		"":             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestOutputsMatch(t *testing.T) {
	assert.True(t, OutputsMatch("1 2 3\r\n", "1 2 3"))
	assert.False(t, OutputsMatch("1 2  3", "1 2 3"))
}

func TestLanguageID(t *testing.T) {
	id, ok := LanguageID("Python")
	assert.True(t, ok)
	assert.Equal(t, 71, id)

	_, ok = LanguageID("brainfuck")
	assert.False(t, ok)

	assert.Equal(t, []string{"c", "cpp", "java", "javascript", "python"}, Languages())
}

func TestPrepareSourceKeepsFullPrograms(t *testing.T) {
	full := "int main() { return 0; }"
	assert.Equal(t, full, prepareSource(full, "cpp"))
	assert.Equal(t, "print(1)", prepareSource("print(1)", "python"))
}
