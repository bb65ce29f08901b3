package remoteexec

import "strings"

// EscapeSingleQuotes rewrites s so it can be embedded inside a
// single-quoted shell word: each ' becomes '\''. This is the only
// escaping path for user-supplied text that reaches a remote shell;
// keep every caller behind it.
func EscapeSingleQuotes(s string) string {
	return strings.ReplaceAll(s, `'`, `'\''`)
}

// SingleQuote returns s as one single-quoted shell word.
func SingleQuote(s string) string {
	return "'" + EscapeSingleQuotes(s) + "'"
}
