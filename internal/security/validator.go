// Package security classifies shell commands and file paths before they are
// allowed to reach the sandbox. Rejected input never crosses the boundary.
package security

import (
	"fmt"
	"strings"
)

// CommandValidator decides whether a proposed shell command or relative file
// path may be forwarded to the execution environment.
type CommandValidator struct {
	allowed map[string]struct{}
	blocked []string
}

// NewCommandValidator builds a validator from an allow list of first-token
// basenames and a block list of substrings.
func NewCommandValidator(allowed, blocked []string) *CommandValidator {
	allowSet := make(map[string]struct{}, len(allowed))
	for _, cmd := range allowed {
		allowSet[cmd] = struct{}{}
	}
	blockedLower := make([]string, 0, len(blocked))
	for _, token := range blocked {
		blockedLower = append(blockedLower, strings.ToLower(token))
	}
	return &CommandValidator{allowed: allowSet, blocked: blockedLower}
}

// ValidateCommand returns nil when the command may be executed.
//
// Decision order: any blocked token appearing anywhere in the lowercased
// string rejects the command; otherwise the first whitespace-delimited token,
// stripped of any path prefix, must appear verbatim in the allow list.
func (v *CommandValidator) ValidateCommand(command string) error {
	lowered := strings.ToLower(command)
	for _, token := range v.blocked {
		if strings.Contains(lowered, token) {
			return fmt.Errorf("command contains blocked token %q", token)
		}
	}

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fmt.Errorf("empty command")
	}

	first := fields[0]
	if idx := strings.LastIndex(first, "/"); idx >= 0 {
		first = first[idx+1:]
	}

	if _, ok := v.allowed[first]; !ok {
		return fmt.Errorf("command %q is not in the allow list", first)
	}
	return nil
}

// ValidatePath rejects any path containing a parent-directory segment or an
// absolute prefix, confining file operations to the sandbox working root.
func (v *CommandValidator) ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("path %q contains a parent-directory segment", path)
	}
	if strings.HasPrefix(path, "/") {
		return fmt.Errorf("path %q is absolute", path)
	}
	return nil
}
