package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = map[string]struct{}{
	"account_number":     {},
	"recipient_code":     {},
	"authorization_code": {},
	"customer_code":      {},
}

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}

	return prefix + maskToken + remainder[len(remainder)-4:]
}

// MaskSensitive returns a copy of the input where string values under
// sensitive keys are masked, at any nesting depth.
func MaskSensitive(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if _, ok := sensitiveKeys[strings.ToLower(trimmedKey)]; ok {
			if s, isString := value.(string); isString {
				out[trimmedKey] = MaskSecret(s)
				continue
			}
		}
		if nested, ok := value.(map[string]any); ok {
			out[trimmedKey] = MaskSensitive(nested)
			continue
		}
		out[trimmedKey] = value
	}
	return out
}

func splitPrefix(value string) (string, string) {
	lastUnderscore := strings.LastIndex(value, "_")
	if lastUnderscore == -1 || lastUnderscore == len(value)-1 {
		return "", value
	}
	return value[:lastUnderscore+1], value[lastUnderscore+1:]
}
