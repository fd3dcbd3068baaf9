package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyze(t *testing.T) {
	cases := []struct {
		name           string
		local, fetched string
		fetchedInLocal bool
		localInFetched bool
		want           MergeAnalysis
	}{
		{
			name: "same commit", local: "a", fetched: "a",
			fetchedInLocal: true, localInFetched: true,
			want: MergeAnalysis{Kind: UpToDate, Local: "a"},
		},
		{
			name: "same commit without ancestry info", local: "a", fetched: "a",
			want: MergeAnalysis{Kind: UpToDate, Local: "a"},
		},
		{
			name: "upstream behind local", local: "b", fetched: "a",
			fetchedInLocal: true,
			want:           MergeAnalysis{Kind: UpToDate, Local: "b"},
		},
		{
			name: "upstream ahead", local: "a", fetched: "b",
			localInFetched: true,
			want:           MergeAnalysis{Kind: FastForward, Local: "a", Target: "b"},
		},
		{
			name: "rewritten upstream", local: "a", fetched: "c",
			want: MergeAnalysis{Kind: Diverged, Local: "a", Target: "c"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Analyze(tc.local, tc.fetched, tc.fetchedInLocal, tc.localInFetched)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAnalysisKindString(t *testing.T) {
	assert.Equal(t, "up-to-date", UpToDate.String())
	assert.Equal(t, "fast-forward", FastForward.String())
	assert.Equal(t, "diverged", Diverged.String())
	assert.Equal(t, "unknown", AnalysisKind(42).String())
}
