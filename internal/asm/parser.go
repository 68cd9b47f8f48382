package asm

import "strings"

// statement is one parsed line of source: either an instruction or a label
// definition.
type statement struct {
	line  int
	label string // non-empty if this is a label definition
	mnem  string
	ops   []string
}

// parseLines splits source into statements, stripping comments and blank
// lines. It never fails: unknown syntax is deferred to the encoder, which
// reports it as a CodegenError anchored to a line number.
func parseLines(src string) []statement {
	var stmts []statement
	for i, raw := range strings.Split(src, "\n") {
		line := stripComment(raw)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lineNo := i + 1
		if strings.HasSuffix(line, ":") {
			stmts = append(stmts, statement{line: lineNo, label: strings.TrimSuffix(line, ":")})
			continue
		}
		mnem, rest := splitFirstField(line)
		var ops []string
		rest = strings.TrimSpace(rest)
		if rest != "" {
			for _, op := range strings.Split(rest, ",") {
				ops = append(ops, strings.TrimSpace(op))
			}
		}
		stmts = append(stmts, statement{line: lineNo, mnem: strings.ToLower(mnem), ops: ops})
	}
	return stmts
}

func stripComment(line string) string {
	if i := strings.IndexAny(line, ";#"); i >= 0 {
		return line[:i]
	}
	return line
}

func splitFirstField(s string) (first, rest string) {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}
