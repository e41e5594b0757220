// Package ignore evaluates directory-scoped ignore files.
//
// A RuleSet is the parsed form of one ignore file and answers questions about
// paths measured from that file's own directory. A Registry holds every
// RuleSet found under a project root and resolves, for a root-relative path,
// which of them decides its fate.
//
// Pattern semantics follow the gitignore dialect as implemented by go-git:
//
//   - *.log       matches at any depth
//   - /build      anchored to the ignore file's directory
//   - build/      matches directories only (and everything beneath them)
//   - **/tmp      matches at any depth, a/**/b crosses directories
//   - !keep.log   re-includes a path excluded by an earlier line
package ignore

import (
	"bufio"
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Decision is the outcome of evaluating a path against a RuleSet.
type Decision int

const (
	// NoMatch means no pattern matched; the RuleSet has no opinion.
	NoMatch Decision = iota
	// Exclude means the last matching pattern excludes the path.
	Exclude
	// Include means the last matching pattern is a negation.
	Include
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case NoMatch:
		return "no-match"
	case Exclude:
		return "exclude"
	case Include:
		return "include"
	default:
		return "unknown"
	}
}

// Rule is one compiled line of an ignore file.
type Rule struct {
	// Line is the 1-based line number in the source file.
	Line int

	// Text is the pattern as written, after trailing whitespace trimming.
	Text string

	// Negate is true for "!" patterns.
	Negate bool

	pattern gitignore.Pattern
}

// ParseWarning describes a line that was skipped because it does not
// compile to a usable pattern.
type ParseWarning struct {
	Line    int
	Pattern string
	Message string
}

// String formats the warning for logs.
func (w ParseWarning) String() string {
	return fmt.Sprintf("line %d: %s: %q", w.Line, w.Message, w.Pattern)
}

// RuleSet is an immutable list of patterns from one ignore file.
// A nil *RuleSet is valid and matches nothing.
type RuleSet struct {
	rules []Rule
}

// Parse compiles ignore file content into a RuleSet, dropping malformed lines.
func Parse(content []byte) *RuleSet {
	rs, _ := ParseWithWarnings(content)
	return rs
}

// ParseWithWarnings compiles ignore file content and reports every line
// that was skipped as malformed. Blank lines and comments are not warnings.
func ParseWithWarnings(content []byte) (*RuleSet, []ParseWarning) {
	rs := &RuleSet{}
	var warnings []ParseWarning

	scanner := bufio.NewScanner(bytes.NewReader(normalizeContent(content)))
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := trimTrailingWhitespace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rule, err := compileRule(line)
		if err != nil {
			warnings = append(warnings, ParseWarning{Line: lineNo, Pattern: line, Message: err.Error()})
			continue
		}
		rule.Line = lineNo
		rs.rules = append(rs.rules, rule)
	}

	// Lines longer than the scanner buffer end the scan early; everything
	// compiled so far still applies.
	if err := scanner.Err(); err != nil {
		warnings = append(warnings, ParseWarning{Line: lineNo + 1, Message: err.Error()})
	}

	return rs, warnings
}

func compileRule(line string) (Rule, error) {
	body := line
	negate := false
	if strings.HasPrefix(body, "!") {
		negate = true
		body = body[1:]
	}

	trimmed := strings.Trim(body, "/")
	if trimmed == "" {
		return Rule{}, fmt.Errorf("empty pattern")
	}

	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "" || seg == "**" {
			continue
		}
		if _, err := path.Match(seg, ""); err != nil {
			return Rule{}, fmt.Errorf("malformed pattern: %w", err)
		}
	}

	return Rule{
		Text:    line,
		Negate:  negate,
		pattern: gitignore.ParsePattern(line, nil),
	}, nil
}

// Decide evaluates subPath, which is relative to the RuleSet's own
// directory. The last matching pattern decides.
func (rs *RuleSet) Decide(subPath string, isDir bool) Decision {
	d, _ := rs.Explain(subPath, isDir)
	return d
}

// Explain is like Decide and also returns the deciding rule, if any.
func (rs *RuleSet) Explain(subPath string, isDir bool) (Decision, *Rule) {
	if rs == nil || len(rs.rules) == 0 {
		return NoMatch, nil
	}

	segments := splitPath(subPath)
	if len(segments) == 0 {
		return NoMatch, nil
	}

	for i := len(rs.rules) - 1; i >= 0; i-- {
		switch rs.rules[i].pattern.Match(segments, isDir) {
		case gitignore.Exclude:
			return Exclude, &rs.rules[i]
		case gitignore.Include:
			return Include, &rs.rules[i]
		}
	}
	return NoMatch, nil
}

// Match reports whether subPath is excluded by this RuleSet.
func (rs *RuleSet) Match(subPath string, isDir bool) bool {
	return rs.Decide(subPath, isDir) == Exclude
}

// Len returns the number of compiled patterns.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Rules returns a copy of the compiled rules in file order.
func (rs *RuleSet) Rules() []Rule {
	if rs == nil {
		return nil
	}
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Patterns returns the pattern text of every rule in file order.
func (rs *RuleSet) Patterns() []string {
	if rs == nil {
		return nil
	}
	out := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.Text
	}
	return out
}

func splitPath(p string) []string {
	p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	if p == "" || p == "." {
		return nil
	}
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// normalizeContent strips UTF-8 byte order marks and converts CRLF and lone
// CR line endings to LF.
func normalizeContent(content []byte) []byte {
	for len(content) >= 3 && content[0] == 0xEF && content[1] == 0xBB && content[2] == 0xBF {
		content = content[3:]
	}
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(content, []byte("\r"), []byte("\n"))
}

// trimTrailingWhitespace drops trailing spaces and tabs unless the first
// trailing space is escaped with a backslash, in which case it is kept.
func trimTrailingWhitespace(line string) string {
	end := len(line)
	for end > 0 && (line[end-1] == ' ' || line[end-1] == '\t') {
		end--
	}
	if end == len(line) {
		return line
	}

	backslashes := 0
	for i := end - 1; i >= 0 && line[i] == '\\'; i-- {
		backslashes++
	}
	if backslashes%2 == 1 && line[end] == ' ' {
		return line[:end+1]
	}
	return line[:end]
}
