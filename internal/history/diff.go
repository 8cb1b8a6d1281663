package history

import "github.com/yairfalse/certusage/pkg/usage"

// ChangeType represents the type of change between two runs.
type ChangeType string

const (
	// ChangeAdded indicates a reference that the previous run did not see.
	ChangeAdded ChangeType = "added"
	// ChangeRemoved indicates a reference that is no longer present.
	ChangeRemoved ChangeType = "removed"
)

// Change is one reference that appeared or disappeared between runs.
type Change struct {
	Type   ChangeType
	Report usage.Report
}

// ReportKey identifies a reference across runs. Location is excluded since
// it embeds mutable names like DNS names.
func ReportKey(r usage.Report) string {
	return string(r.Kind) + "|" + r.Resource + "|" + r.Detail
}

// Diff compares the references of two runs. Removed references come first,
// in previous order, then added ones in current order.
func Diff(previous, current []usage.Report) []Change {
	prev := indexReports(previous)
	curr := indexReports(current)

	changes := make([]Change, 0)
	for _, r := range previous {
		if _, ok := curr[ReportKey(r)]; !ok {
			changes = append(changes, Change{Type: ChangeRemoved, Report: r})
		}
	}
	for _, r := range current {
		if _, ok := prev[ReportKey(r)]; !ok {
			changes = append(changes, Change{Type: ChangeAdded, Report: r})
		}
	}
	return changes
}

func indexReports(reports []usage.Report) map[string]struct{} {
	m := make(map[string]struct{}, len(reports))
	for _, r := range reports {
		m[ReportKey(r)] = struct{}{}
	}
	return m
}
