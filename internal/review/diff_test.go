package review

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDiffContents_Basic(t *testing.T) {
	diff := DiffContents("a\nb\nc", "a\nX\nc")

	require.Equal(t, []DiffLine{
		{Type: DiffUnchanged, Content: "a", OldLine: 1, NewLine: 1},
		{Type: DiffRemoved, Content: "b", OldLine: 2},
		{Type: DiffAdded, Content: "X", NewLine: 2},
		{Type: DiffUnchanged, Content: "c", OldLine: 3, NewLine: 3},
	}, diff.Lines)

	require.Equal(t, DiffStats{
		Additions: 1,
		Deletions: 1,
		Unchanged: 2,
	}, diff.Stats)
}

func TestDiffContents_Identity(t *testing.T) {
	content := "# Plan\n\nstep one\nstep two"
	diff := DiffContents(content, content)

	require.Zero(t, diff.Stats.Additions)
	require.Zero(t, diff.Stats.Deletions)
	require.Equal(t, 4, diff.Stats.Unchanged)
}

func TestDiffContents_AppendOnly(t *testing.T) {
	diff := DiffContents("a\nb", "a\nb\nc")

	require.Equal(t, DiffStats{
		Additions: 1,
		Unchanged: 2,
	}, diff.Stats)
	require.Equal(t, DiffLine{
		Type:    DiffAdded,
		Content: "c",
		NewLine: 3,
	}, diff.Lines[2])
}

func TestDiffContents_EmptyDocuments(t *testing.T) {
	diff := DiffContents("", "")

	// Splitting the empty string yields one empty line.
	require.Equal(t, 1, diff.Stats.Unchanged)
	require.Zero(t, diff.Stats.Additions)
	require.Zero(t, diff.Stats.Deletions)
}

// TestDiffContents_Properties checks the structural invariants of the
// LCS diff on random documents: line counts reconcile with the stats,
// line numbers are monotonic on both sides, and reassembling each side
// from the diff reproduces the inputs.
func TestDiffContents_Properties(t *testing.T) {
	lineGen := rapid.SliceOfN(
		rapid.SampledFrom([]string{"a", "b", "c", "d", ""}), 0, 8,
	)

	rapid.Check(t, func(t *rapid.T) {
		oldLines := lineGen.Draw(t, "old")
		newLines := lineGen.Draw(t, "new")
		oldContent := strings.Join(oldLines, "\n")
		newContent := strings.Join(newLines, "\n")

		diff := DiffContents(oldContent, newContent)

		var rebuiltOld, rebuiltNew []string
		prevOld, prevNew := 0, 0
		for _, line := range diff.Lines {
			switch line.Type {
			case DiffRemoved:
				rebuiltOld = append(rebuiltOld, line.Content)
			case DiffAdded:
				rebuiltNew = append(rebuiltNew, line.Content)
			case DiffUnchanged:
				rebuiltOld = append(rebuiltOld, line.Content)
				rebuiltNew = append(rebuiltNew, line.Content)
			}

			if line.OldLine != 0 {
				if line.OldLine <= prevOld {
					t.Fatalf("old line numbers not increasing")
				}
				prevOld = line.OldLine
			}
			if line.NewLine != 0 {
				if line.NewLine <= prevNew {
					t.Fatalf("new line numbers not increasing")
				}
				prevNew = line.NewLine
			}
		}

		if strings.Join(rebuiltOld, "\n") != oldContent {
			t.Fatalf("old side does not reassemble")
		}
		if strings.Join(rebuiltNew, "\n") != newContent {
			t.Fatalf("new side does not reassemble")
		}

		stats := diff.Stats
		if stats.Unchanged+stats.Deletions != len(strings.Split(oldContent, "\n")) {
			t.Fatalf("deletion count does not reconcile")
		}
		if stats.Unchanged+stats.Additions != len(strings.Split(newContent, "\n")) {
			t.Fatalf("addition count does not reconcile")
		}
	})
}

// TestDiffContents_SelfDiffProperty: diffing any document against itself
// yields no additions and no removals.
func TestDiffContents_SelfDiffProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		content := rapid.String().Draw(t, "content")
		diff := DiffContents(content, content)

		if diff.Stats.Additions != 0 || diff.Stats.Deletions != 0 {
			t.Fatalf("self diff produced changes: %+v", diff.Stats)
		}
	})
}
