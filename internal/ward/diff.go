package ward

import (
	"encoding/json"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ProfileDiff renders a line-oriented preview of the changes between two
// profiles, for display before saving an edit. Unchanged lines are
// omitted; changed lines are prefixed with - and +.
func ProfileDiff(before, after *User) string {
	oldText := profileText(before)
	newText := profileText(after)

	if oldText == newText {
		return ""
	}

	dmp := diffmatchpatch.New()
	chars1, chars2, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(chars1, chars2, false), lines)

	var b strings.Builder
	for _, d := range diffs {
		prefix := ""

		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffEqual:
			continue
		}

		for _, line := range strings.Split(strings.TrimRight(d.Text, "\n"), "\n") {
			b.WriteString(prefix)
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return b.String()
}

func profileText(u *User) string {
	if u == nil {
		return ""
	}

	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return ""
	}

	return string(data) + "\n"
}
