package tools

import (
	"strings"

	"github.com/m4xw311/superagent/errors"
)

const (
	searchMarker  = "<<<<<<< SEARCH"
	dividerMarker = "======="
	replaceMarker = ">>>>>>> REPLACE"
)

type edit struct {
	search  string
	replace string
}

// parseDiff reads SEARCH/REPLACE blocks. Every line inside a section keeps
// its trailing newline. A blank diff yields no edits.
func parseDiff(diff string) ([]edit, error) {
	if strings.TrimSpace(diff) == "" {
		return nil, nil
	}

	const (
		outside = iota
		inSearch
		inReplace
	)
	var (
		edits   []edit
		state   = outside
		search  strings.Builder
		replace strings.Builder
	)
	for _, line := range strings.Split(diff, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == searchMarker:
			if state != outside {
				return nil, errors.New("malformed diff: SEARCH block opened before the previous one was closed")
			}
			state = inSearch
			search.Reset()
			replace.Reset()
		case trimmed == dividerMarker && state == inSearch:
			state = inReplace
		case trimmed == replaceMarker:
			if state != inReplace {
				return nil, errors.New("malformed diff: REPLACE marker without a matching SEARCH and ======= section")
			}
			if search.Len() == 0 {
				return nil, errors.New("malformed diff: SEARCH section must not be empty")
			}
			edits = append(edits, edit{search: search.String(), replace: replace.String()})
			state = outside
		case state == inSearch:
			search.WriteString(line + "\n")
		case state == inReplace:
			replace.WriteString(line + "\n")
		}
	}
	if state != outside {
		return nil, errors.New("malformed diff: last SEARCH/REPLACE block is not closed with %s", replaceMarker)
	}
	if len(edits) == 0 {
		return nil, errors.New("no valid SEARCH/REPLACE blocks found in diff")
	}
	return edits, nil
}

// applyEdits replaces the first occurrence of each search section. Nothing is
// applied unless every section matches.
func applyEdits(content string, edits []edit) (string, error) {
	for i, e := range edits {
		search := e.search
		if !strings.Contains(content, search) {
			// The last line of a file often lacks a newline.
			trimmed := strings.TrimSuffix(search, "\n")
			if !strings.HasSuffix(content, trimmed) {
				return "", errors.New("no change applied: SEARCH block %d does not match the file content exactly", i+1)
			}
			content = content[:len(content)-len(trimmed)] + strings.TrimSuffix(e.replace, "\n")
			continue
		}
		content = strings.Replace(content, search, e.replace, 1)
	}
	return content, nil
}
