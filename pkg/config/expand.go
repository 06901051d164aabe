package config

import (
	"os"
	"regexp"
	"strings"
)

var envRefPattern = regexp.MustCompile(`\$\{(?:env:)?([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv substitutes ${VAR} and ${env:VAR} references with values from
// the process environment. Unset variables expand to the empty string.
func ExpandEnv(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		name = strings.TrimPrefix(name, "env:")
		return os.Getenv(name)
	})
}
