package review

import "strings"

// DiffLineType classifies a single line of a diff result.
type DiffLineType string

const (
	// DiffAdded marks a line present only in the new version.
	DiffAdded DiffLineType = "added"

	// DiffRemoved marks a line present only in the old version.
	DiffRemoved DiffLineType = "removed"

	// DiffUnchanged marks a line common to both versions.
	DiffUnchanged DiffLineType = "unchanged"
)

// DiffLine is one entry of a line diff. Line numbers are 1-based on each
// side; a zero line number means the line is absent on that side.
type DiffLine struct {
	Type    DiffLineType `json:"type"`
	Content string       `json:"content"`
	OldLine int          `json:"oldLine,omitempty"`
	NewLine int          `json:"newLine,omitempty"`
}

// DiffStats aggregates the counts of a diff result.
type DiffStats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Unchanged int `json:"unchanged"`
}

// Diff is the result of comparing two document versions line by line.
type Diff struct {
	Lines []DiffLine `json:"lines"`
	Stats DiffStats  `json:"stats"`
}

// DiffContents computes a line-based LCS diff between two documents.
// Sequences are split on newline. When backtracking the LCS table and
// the two candidate cells are equal, the added direction wins, keeping
// the output deterministic.
func DiffContents(oldContent, newContent string) Diff {
	oldLines := strings.Split(oldContent, "\n")
	newLines := strings.Split(newContent, "\n")

	m, n := len(oldLines), len(newLines)

	// table[i][j] holds the LCS length of oldLines[:i] and newLines[:j].
	table := make([][]int, m+1)
	for i := range table {
		table[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if oldLines[i-1] == newLines[j-1] {
				table[i][j] = table[i-1][j-1] + 1
			} else if table[i-1][j] > table[i][j-1] {
				table[i][j] = table[i-1][j]
			} else {
				table[i][j] = table[i][j-1]
			}
		}
	}

	// Backtrack from the bottom-right corner, collecting entries in
	// reverse order.
	var reversed []DiffLine
	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && oldLines[i-1] == newLines[j-1]:
			reversed = append(reversed, DiffLine{
				Type:    DiffUnchanged,
				Content: oldLines[i-1],
				OldLine: i,
				NewLine: j,
			})
			i--
			j--

		case j > 0 && (i == 0 || table[i][j-1] >= table[i-1][j]):
			reversed = append(reversed, DiffLine{
				Type:    DiffAdded,
				Content: newLines[j-1],
				NewLine: j,
			})
			j--

		default:
			reversed = append(reversed, DiffLine{
				Type:    DiffRemoved,
				Content: oldLines[i-1],
				OldLine: i,
			})
			i--
		}
	}

	result := Diff{Lines: make([]DiffLine, 0, len(reversed))}
	for k := len(reversed) - 1; k >= 0; k-- {
		line := reversed[k]
		result.Lines = append(result.Lines, line)

		switch line.Type {
		case DiffAdded:
			result.Stats.Additions++
		case DiffRemoved:
			result.Stats.Deletions++
		case DiffUnchanged:
			result.Stats.Unchanged++
		}
	}

	return result
}
