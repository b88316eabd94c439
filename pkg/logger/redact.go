package logger

import "strings"

const redacted = "[REDACTED]"

// RedactPhone keeps the last four digits so support can correlate a number
// without the log holding it in full.
func RedactPhone(phone string) string {
	digits := make([]rune, 0, len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 4 {
		return "***"
	}
	return "***" + string(digits[len(digits)-4:])
}

// RedactFields masks sensitive values in a log field map, in place. Keys are
// matched on their snake_case words, so "phone_number" and "card_nonce" are
// masked while "resource_id" is not. Phones already passed through
// RedactPhone are left as they are.
func RedactFields(fields map[string]any) map[string]any {
	for key, value := range fields {
		words := strings.FieldsFunc(strings.ToLower(key), func(r rune) bool { return r == '_' || r == '.' || r == '-' })
		switch {
		case hasWord(words, "phone", "msisdn"):
			s, ok := value.(string)
			switch {
			case !ok:
				fields[key] = redacted
			case !strings.HasPrefix(s, "***"):
				fields[key] = RedactPhone(s)
			}
		case hasWord(words, "token", "secret", "signature", "card", "nonce", "password"),
			hasPair(words, "source", "id"):
			fields[key] = redacted
		}
	}
	return fields
}

func hasWord(words []string, candidates ...string) bool {
	for _, w := range words {
		for _, c := range candidates {
			if w == c {
				return true
			}
		}
	}
	return false
}

func hasPair(words []string, first, second string) bool {
	for i := 0; i+1 < len(words); i++ {
		if words[i] == first && words[i+1] == second {
			return true
		}
	}
	return false
}
