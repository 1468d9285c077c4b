// Package masking redacts credentials before they reach the audit log.
package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = []string{"pin", "password", "secret", "token", "key"}

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
// Values of four characters or fewer are masked entirely.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-2:]
}

// IsSensitive reports whether a metadata key names a credential.
func IsSensitive(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, s := range sensitiveKeys {
		if k == s || strings.HasSuffix(k, "_"+s) || strings.HasPrefix(k, s+"_") {
			return true
		}
	}
	return false
}

// MaskMetadata returns a copy of input with every value under a sensitive
// key masked. Nested maps and slices are walked.
func MaskMetadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if IsSensitive(trimmedKey) {
			masked[trimmedKey] = maskValue(value)
			continue
		}
		masked[trimmedKey] = walk(value)
	}

	if len(masked) == 0 {
		return nil
	}
	return masked
}

func walk(value any) any {
	switch cast := value.(type) {
	case map[string]any:
		return MaskMetadata(cast)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, walk(item))
		}
		return out
	default:
		return value
	}
}

func maskValue(value any) any {
	switch cast := value.(type) {
	case string:
		return MaskSecret(cast)
	case nil:
		return nil
	default:
		return maskToken
	}
}
