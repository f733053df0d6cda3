package service

import (
	"strings"
)

// commitVerbs are the command prefixes treated as an intent to commit.
// Each must be followed by end of input or whitespace.
var commitVerbs = []string{
	"git commit",
}

// normalizeCommand drops quote characters and collapses whitespace
func normalizeCommand(command string) string {
	command = strings.NewReplacer(`"`, "", `'`, "").Replace(command)
	return strings.Join(strings.Fields(command), " ")
}

// IsCommitCommand reports whether a shell command attempts a git commit.
// Chains such as `cd repo && git commit -m x` are checked segment by segment.
func IsCommitCommand(command string) bool {
	normalized := normalizeCommand(command)
	if normalized == "" {
		return false
	}
	for _, segment := range splitChain(normalized) {
		if isCommitSegment(segment) {
			return true
		}
	}
	return false
}

func isCommitSegment(segment string) bool {
	for _, verb := range commitVerbs {
		if segment == verb || strings.HasPrefix(segment, verb+" ") {
			return true
		}
	}
	return false
}

// splitChain splits on the && and ; command separators
func splitChain(command string) []string {
	var out []string
	for _, part := range strings.Split(command, "&&") {
		for _, seg := range strings.Split(part, ";") {
			if seg = strings.TrimSpace(seg); seg != "" {
				out = append(out, seg)
			}
		}
	}
	return out
}
