package spec

import (
	"fmt"
	"strings"
)

// ValidateVersion checks the declared openapi version against supported.
func ValidateVersion(doc RawDocument, supported []string) error {
	if len(supported) == 0 {
		supported = DefaultSupportedVersions
	}
	declared := "<missing>"
	if v, ok := doc["openapi"]; ok && v != nil {
		declared = strings.TrimSpace(fmt.Sprint(v))
	}
	for _, s := range supported {
		if s == declared {
			return nil
		}
	}
	return &SpecError{
		Code:        VersionError,
		Message:     fmt.Sprintf("spec: unsupported OpenAPI version %s (supported: %s)", declared, strings.Join(supported, ", ")),
		JSONPointer: "#/openapi",
	}
}

// ValidateStructure checks the minimal invariants every contract relies on.
// It runs on the raw tree so documents a typed model would reject can pass.
func ValidateStructure(doc RawDocument) error {
	info, ok := doc["info"].(map[string]any)
	if !ok {
		return structuralError("#/info", "spec: info section is missing")
	}
	if v, ok := info["version"]; !ok || v == nil || strings.TrimSpace(fmt.Sprint(v)) == "" {
		return structuralError("#/info/version", "spec: info.version is missing or empty")
	}

	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		return structuralError("#/paths", "spec: paths must be a mapping")
	}
	for _, p := range sortedKeys(paths) {
		item, ok := paths[p].(map[string]any)
		if !ok {
			continue
		}
		for _, m := range httpMethods {
			key := strings.ToLower(string(m))
			raw, present := item[key]
			if !present {
				continue
			}
			op, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			pointer := "#/paths/" + escapePointer(p) + "/" + key + "/responses"
			responses, ok := op["responses"].(map[string]any)
			if !ok {
				return structuralError(pointer, fmt.Sprintf("spec: %s %s has no responses section", m, p))
			}
			if len(responses) == 0 {
				return structuralError(pointer, fmt.Sprintf("spec: %s %s declares no responses", m, p))
			}
		}
	}
	return nil
}

func structuralError(pointer, msg string) error {
	return &SpecError{Code: StructuralValidationError, Message: msg, JSONPointer: pointer}
}

// escapePointer escapes a JSON Pointer reference token (RFC 6901).
func escapePointer(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}
