// Package conversation derives the identity of a two-party conversation.
package conversation

// ID maps a pair of user identifiers to a single conversation key.
// The result is independent of argument order: ID(a, b) == ID(b, a).
// Conversation keys are used for room membership and cache keys, so
// they must stay stable for the life of a friendship.
func ID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}
