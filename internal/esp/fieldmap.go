package esp

import (
	"sort"
	"strings"
)

// Contact is the profile data sent alongside an email address.
type Contact struct {
	FirstName string
	LastName  string
	Phone     string
}

// MapContactFields guesses name and phone values from submitted field ids.
// Keys are matched lower-cased in sorted order and the first match wins.
func MapContactFields(fields map[string]any) Contact {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})

	var c Contact
	for _, k := range keys {
		value, ok := fields[k].(string)
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			continue
		}
		lower := strings.ToLower(k)
		switch {
		case strings.Contains(lower, "last"):
			if c.LastName == "" {
				c.LastName = value
			}
		case strings.Contains(lower, "name"):
			if c.FirstName == "" {
				c.FirstName = value
			}
		case strings.Contains(lower, "phone"), strings.Contains(lower, "tel"):
			if c.Phone == "" {
				c.Phone = value
			}
		}
	}
	return c
}
