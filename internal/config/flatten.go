package config

import (
	"slices"
	"strings"
)

type secretField struct {
	key   string
	value func(*Config) string
}

// secretFields are the credential keys. Their values are masked in listings
// and redacted from user-visible diagnostics.
var secretFields = []secretField{
	{"llm.api_key", func(c *Config) string { return c.LLM.APIKey }},
	{"telegram.token", func(c *Config) string { return c.Telegram.Token }},
	{"telegram.webhook_secret", func(c *Config) string { return c.Telegram.WebhookSecret }},
	{"google.api_key", func(c *Config) string { return c.Google.APIKey }},
	{"tenor.api_key", func(c *Config) string { return c.Tenor.APIKey }},
}

// IsSecretKey reports whether the dot path names a credential.
func IsSecretKey(key string) bool {
	return slices.ContainsFunc(secretFields, func(f secretField) bool { return f.key == key })
}

// Flatten turns nested JSON objects into dot paths:
// {"reply": {"aggressive": true}} becomes {"reply.aggressive": true}.
// Arrays are leaves.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if child, ok := v.(map[string]any); ok {
				walk(prefix+k+".", child)
				continue
			}
			out[prefix+k] = v
		}
	}
	walk("", m)
	return out
}

// Unflatten is the inverse of Flatten. A dot path through a leaf replaces
// the leaf with an object.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for path, v := range flat {
		setPath(out, strings.Split(path, "."), v)
	}
	return out
}

func setPath(m map[string]any, parts []string, v any) {
	for _, part := range parts[:len(parts)-1] {
		child, ok := m[part].(map[string]any)
		if !ok {
			child = make(map[string]any)
			m[part] = child
		}
		m = child
	}
	m[parts[len(parts)-1]] = v
}

// MaskSecrets returns a copy of flat with each non-empty credential shown as
// "***" plus its last four characters.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		out[k] = v
		if s, ok := v.(string); ok && s != "" && IsSecretKey(k) {
			out[k] = mask(s)
		}
	}
	return out
}

func mask(s string) string {
	if len(s) <= 4 {
		return "***" + s
	}
	return "***" + s[len(s)-4:]
}
