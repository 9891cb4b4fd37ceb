package util

// Contains checks if a slice contains a specific string
func Contains(slice []string, val string) bool {
	for _, item := range slice {
		if item == val {
			return true
		}
	}
	return false
}

// Dedup returns the strings of slice in their first-seen order without duplicates.
func Dedup(slice []string) []string {
	out := make([]string, 0, len(slice))
	for _, s := range slice {
		if !Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
