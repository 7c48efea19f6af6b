package observability

import (
    "encoding/json"
    "regexp"
    "strings"
)

var sensitiveKeys = []string{
    "api_key", "apikey", "apiKey", "x-api-key", "authorization", "auth", "token", "access_token", "refresh_token", "password", "secret", "bearer",
}

// RedactJSON takes a JSON payload and redacts sensitive values based on common key names.
func RedactJSON(raw json.RawMessage) json.RawMessage {
    if len(raw) == 0 {
        return raw
    }
    var v any
    if err := json.Unmarshal(raw, &v); err != nil {
        return raw
    }
    redacted := redactValue(v)
    b, err := json.Marshal(redacted)
    if err != nil {
        return raw
    }
    return b
}

func redactValue(v any) any {
    switch val := v.(type) {
    case map[string]any:
        for k, vv := range val {
            if isSensitiveKey(k) {
                val[k] = "[REDACTED]"
            } else {
                val[k] = redactValue(vv)
            }
        }
        return val
    case []any:
        for i := range val {
            val[i] = redactValue(val[i])
        }
        return val
    default:
        return v
    }
}

func isSensitiveKey(k string) bool {
    low := strings.ToLower(k)
    for _, s := range sensitiveKeys {
        if low == s {
            return true
        }
        // contains common header forms
        if strings.Contains(low, s) {
            return true
        }
    }
    return false
}

var piiPatterns = []*regexp.Regexp{
    regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
    regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
    regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`),
    regexp.MustCompile(`\b(?:\+?1[ -]?)?\(?\d{3}\)?[ -]?\d{3}[ -]?\d{4}\b`),
}

// RedactPII scrubs free text of emails, SSNs, card-like digit runs, and
// phone numbers before it is logged or persisted. Unlike RedactJSON this
// operates on unstructured strings, matching the generation service's
// need to scrub a user query or final answer rather than a JSON payload.
func RedactPII(text string) string {
    for _, re := range piiPatterns {
        text = re.ReplaceAllString(text, "[REDACTED]")
    }
    return text
}

