package compare

import (
	"fmt"
	"strings"
)

// FormatReport renders changes as a human-readable report.
func FormatReport(changes []NodeChange) string {
	summary := Summarize(changes)
	if summary.Total() == 0 {
		return "No changes detected."
	}

	var b strings.Builder
	b.WriteString("Changes detected:\n\n")

	section := func(t ChangeType, count int, mark string) {
		if count == 0 {
			return
		}
		fmt.Fprintf(&b, "%s (%d nodes):\n", t, count)
		for _, c := range changes {
			if c.Type != t {
				continue
			}
			switch t {
			case Added:
				fmt.Fprintf(&b, "  %s %s (id: %s)\n", mark, c.Path, short(c.NewID))
			case Updated:
				fmt.Fprintf(&b, "  %s %s (id: %s -> %s)\n", mark, c.Path, short(c.OldID), short(c.NewID))
			case Removed:
				fmt.Fprintf(&b, "  %s %s (id: %s)\n", mark, c.Path, short(c.OldID))
			}
		}
		b.WriteString("\n")
	}
	section(Added, summary.Added, "+")
	section(Updated, summary.Updated, "~")
	section(Removed, summary.Removed, "-")

	fmt.Fprintf(&b, "Summary: %d added, %d updated, %d removed\n",
		summary.Added, summary.Updated, summary.Removed)
	return b.String()
}

func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
