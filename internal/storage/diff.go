package storage

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffText renders a unified diff between the stored and the local value of
// key. It returns "" when both are identical.
func DiffText(key string, stored, local []byte) string {
	if bytes.Equal(stored, local) {
		return ""
	}

	if !IsText(stored) || !IsText(local) {
		return fmt.Sprintf("Binary record %s has changed\n", key)
	}

	dmp := diffmatchpatch.New()

	// Line-mode diff for better output
	storedStr, localStr := string(stored), string(local)
	a, b, lineArray := dmp.DiffLinesToChars(storedStr, localStr)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	patches := dmp.PatchMake(storedStr, diffs)
	if len(patches) == 0 {
		return ""
	}

	var result strings.Builder
	fmt.Fprintf(&result, "--- a/%s\n", key)
	fmt.Fprintf(&result, "+++ b/%s\n", key)
	result.WriteString(dmp.PatchToText(patches))
	return result.String()
}
