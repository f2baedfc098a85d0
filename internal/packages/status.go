package packages

import "github.com/mrlokans/campussync/internal/entities"

// rank orders statuses by dominance when merged.
func rank(s entities.PackageStatus) int {
	switch s {
	case entities.PackageDownloading:
		return 3
	case entities.PackageOutdated:
		return 2
	case entities.PackageNotDownloaded:
		return 1
	case entities.PackageDownloaded:
		return 0
	}
	// Unknown statuses count as not downloaded.
	return 1
}

// Merge combines two member statuses:
// downloading > outdated > not_downloaded > downloaded.
func Merge(a, b entities.PackageStatus) entities.PackageStatus {
	if rank(b) > rank(a) {
		a = b
	}
	if !a.Valid() {
		return entities.PackageNotDownloaded
	}
	return a
}

// Aggregate folds Merge over statuses. An empty collection has nothing
// downloaded, so it aggregates to not_downloaded.
func Aggregate(statuses ...entities.PackageStatus) entities.PackageStatus {
	if len(statuses) == 0 {
		return entities.PackageNotDownloaded
	}
	out := entities.PackageDownloaded
	for _, s := range statuses {
		out = Merge(out, s)
	}
	return out
}
