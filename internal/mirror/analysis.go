package mirror

type AnalysisKind int

const (
	UpToDate AnalysisKind = iota
	FastForward
	Diverged
)

func (k AnalysisKind) String() string {
	switch k {
	case UpToDate:
		return "up-to-date"
	case FastForward:
		return "fast-forward"
	case Diverged:
		return "diverged"
	default:
		return "unknown"
	}
}

// MergeAnalysis is the relationship between the local branch head and the
// fetched upstream head. Target is only meaningful for FastForward.
type MergeAnalysis struct {
	Kind   AnalysisKind
	Local  string
	Target string
}

// Analyze classifies local against fetched. fetchedInLocal reports whether
// fetched is an ancestor of local; localInFetched the reverse.
func Analyze(local, fetched string, fetchedInLocal, localInFetched bool) MergeAnalysis {
	switch {
	case local == fetched || fetchedInLocal:
		return MergeAnalysis{Kind: UpToDate, Local: local}
	case localInFetched:
		return MergeAnalysis{Kind: FastForward, Local: local, Target: fetched}
	default:
		return MergeAnalysis{Kind: Diverged, Local: local, Target: fetched}
	}
}
