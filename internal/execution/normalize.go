package execution

import (
	"sort"
	"strings"
)

var languageIDs = map[string]int{
	"javascript": 63,
	"python":     71,
	"cpp":        54,
	"java":       62,
	"c":          50,
}

// LanguageID maps a language name to the sandbox identifier.
func LanguageID(language string) (int, bool) {
	id, ok := languageIDs[strings.ToLower(strings.TrimSpace(language))]
	return id, ok
}

// Languages lists supported language names in stable order.
func Languages() []string {
	out := make([]string, 0, len(languageIDs))
	for name := range languageIDs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Normalize unifies line endings and trims surrounding whitespace.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// OutputsMatch compares program output with the expected output.
func OutputsMatch(actual, expected string) bool {
	return Normalize(actual) == Normalize(expected)
}

const cppPrelude = `#include <iostream>
#include <vector>
#include <string>
#include <algorithm>
using namespace std;

int main() {
`

// prepareSource wraps C++ fragments that do not declare main.
func prepareSource(code, language string) string {
	if strings.ToLower(language) != "cpp" || strings.Contains(code, "main(") {
		return code
	}
	return cppPrelude + "    " + code + "\n    return 0;\n}\n"
}
