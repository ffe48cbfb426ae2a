package commands

import (
	"fmt"
	"strings"
	"time"
)

var units = []struct {
	name    string
	seconds int64
}{
	{"year", 60 * 60 * 24 * 365},
	{"week", 60 * 60 * 24 * 7},
	{"day", 60 * 60 * 24},
	{"hour", 60 * 60},
	{"minute", 60},
	{"second", 1},
}

// FormatDuration renders d in whole seconds as e.g.
// "1 day, 1 hour and 1 minute". Zero units are skipped; anything under a
// second is "0 seconds".
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	var parts []string
	for _, u := range units {
		n := total / u.seconds
		if n <= 0 {
			continue
		}
		total %= u.seconds
		s := "s"
		if n == 1 {
			s = ""
		}
		parts = append(parts, fmt.Sprintf("%d %s%s", n, u.name, s))
	}
	switch len(parts) {
	case 0:
		return "0 seconds"
	case 1:
		return parts[0]
	}
	last := len(parts) - 1
	return strings.Join(parts[:last], ", ") + " and " + parts[last]
}
