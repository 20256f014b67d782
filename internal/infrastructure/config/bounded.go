package config

import "unicode/utf8"

// Truncate returns s clipped to at most limit bytes without splitting a
// UTF-8 sequence. Values within the limit are returned unchanged.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Fits reports whether s is within limit bytes.
func Fits(s string, limit int) bool {
	return len(s) <= limit
}
