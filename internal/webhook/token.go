package webhook

// SecureCompare checks the webhook secret in constant time so the
// comparison does not leak the position of the first mismatch. Mismatched
// bytes accumulate bitwise instead of short-circuiting. Fails closed when
// either side is empty or the lengths differ.
func SecureCompare(provided, expected string) bool {
	if provided == "" || expected == "" || len(provided) != len(expected) {
		return false
	}
	var diff byte
	for i := 0; i < len(provided); i++ {
		diff |= provided[i] ^ expected[i]
	}
	return diff == 0
}
