package sanlvm

import (
	"regexp"
	"strings"
)

// Schema describes the tabular output of one inventory command: how many
// fields each line carries and what separates them. Separator "" means
// the command printed aligned columns and fields are split on runs of
// two or more whitespace characters; otherwise it is the separator
// character the command was invoked with (e.g. ":").
type Schema struct {
	// Name identifies the producing command in parse errors.
	Name string

	// Fields is the exact number of fields per line.
	Fields int

	// Separator is the explicit field separator, or "" for whitespace.
	Separator string
}

var whitespaceRuns = regexp.MustCompile(`\s{2,}`)

// ParseTable splits raw command output into records according to the
// schema. Blank lines are skipped. A line that does not yield exactly
// the schema's field count fails with a *ParseError; fields are never
// silently truncated or mis-assigned.
func ParseTable(out string, schema Schema) ([][]string, error) {
	records := [][]string{}

	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		var fields []string
		if schema.Separator == "" {
			fields = whitespaceRuns.Split(line, -1)
		} else {
			fields = strings.Split(line, schema.Separator)
		}

		for i, f := range fields {
			fields[i] = strings.TrimSpace(f)
		}

		if len(fields) != schema.Fields {
			return nil, &ParseError{
				Schema:   schema.Name,
				Line:     line,
				Expected: schema.Fields,
				Found:    len(fields),
			}
		}

		records = append(records, fields)
	}

	return records, nil
}
