// Package stringutil holds small string helpers shared across services.
package stringutil

// TruncateString caps s at maxLen bytes. Strings at or under the cap are
// returned unchanged.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
