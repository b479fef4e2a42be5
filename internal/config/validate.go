package config

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

// ValidateSettings checks raw settings (as read from .psyche/config.json)
// against the embedded schema before they are decoded into Config. Unknown
// keys and out-of-range values are rejected here so a typo never silently
// falls back to a default. Violations are sorted into one deterministic
// message.
func ValidateSettings(settings map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewGoLoader(settings),
	)
	if err != nil {
		return fmt.Errorf("validate config schema: %w", err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, v := range result.Errors() {
		violations = append(violations, v.String())
	}
	sort.Strings(violations)

	return fmt.Errorf("config schema validation failed: %s", strings.Join(violations, "; "))
}
