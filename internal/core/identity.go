package core

import "strings"

// NormalizeIdentity maps a display name to its addressing key. Identities
// are unique by case-insensitive, trimmed comparison.
func NormalizeIdentity(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DMID derives the conversation id for two participants. It is symmetric:
// DMID(a, b) == DMID(b, a).
func DMID(a, b string) string {
	na, nb := NormalizeIdentity(a), NormalizeIdentity(b)
	if na > nb {
		na, nb = nb, na
	}
	return na + ":" + nb
}
