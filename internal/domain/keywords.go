package domain

import "strings"

// NormalizeKeywords trims whitespace, drops empty entries, and removes
// duplicates while preserving first-seen order. Rule keyword lists must
// pass through here before they are sent in a create or update request.
func NormalizeKeywords(keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
