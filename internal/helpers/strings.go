package helpers

// Truncate shortens the given string to the specified length, appending "..." if truncation occurs.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
