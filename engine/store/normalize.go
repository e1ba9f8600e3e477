package store

// NormalizePath exposes normalize for callers outside this package (the
// task executor's binding resolver reuses the same bracket-to-dot
// rewriting when walking into a for_each iteration value or a UseBindings
// entry, rather than duplicating the regex).
func NormalizePath(path string) string {
	return normalize(path)
}
