package masking

import "strings"

const maskToken = "****"

// rules picks the redaction for a metadata key. Keys not listed pass through.
var rules = map[string]func(string) string{
	"payment_reference": MaskSecret,
	"payout_details":    MaskSecret,
	"bank_account":      MaskSecret,
	"iban":              MaskIBAN,
	"email":             MaskEmail,
	"notify_email":      MaskEmail,
	"recipient":         MaskEmail,
}

// MaskSecret keeps a provider prefix such as "tr_" and the last four
// characters.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, rest := "", trimmed
	if i := strings.LastIndex(trimmed, "_"); i >= 0 && i < len(trimmed)-1 {
		prefix, rest = trimmed[:i+1], trimmed[i+1:]
	}
	if len(rest) <= 4 {
		return prefix + maskToken
	}
	return prefix + maskToken + rest[len(rest)-4:]
}

// MaskIBAN keeps the country code and the last four digits.
func MaskIBAN(value string) string {
	compact := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(value), " ", ""))
	if len(compact) <= 6 {
		return MaskSecret(compact)
	}
	return compact[:2] + maskToken + compact[len(compact)-4:]
}

// MaskEmail keeps the first letter of the local part and the domain.
func MaskEmail(value string) string {
	trimmed := strings.TrimSpace(value)
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 {
		return MaskSecret(trimmed)
	}
	return trimmed[:1] + maskToken + trimmed[at:]
}

// Fields returns a copy of metadata with sensitive keys redacted, nested
// maps included.
func Fields(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = redact(key, value)
	}
	return out
}

func redact(key string, value any) any {
	switch v := value.(type) {
	case string:
		if rule, ok := rules[strings.ToLower(key)]; ok {
			return rule(v)
		}
		return v
	case map[string]any:
		return Fields(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redact(key, item)
		}
		return out
	default:
		return value
	}
}
