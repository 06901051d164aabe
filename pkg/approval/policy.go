// Package approval decides whether a tool call may run: either it matches
// a static allow-list, or the user is asked interactively.
package approval

import (
	"context"
	"strings"
)

// GlobalKey in an allow-list applies its entries to every server.
const GlobalKey = "*"

// Policy is consulted once per tool call.
type Policy interface {
	// IsAutoAllowed reports whether (server, tool) may run without asking.
	IsAutoAllowed(server, tool string) bool
	// Confirm asks for permission to run one call. args is the raw JSON
	// argument string shown to the user.
	Confirm(ctx context.Context, server, tool, args string) (bool, error)
}

// canon normalizes tool and server names for comparison: lowercase,
// trimmed, with "-" treated the same as "_".
func canon(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, "-", "_")
}

// Rules evaluates the static auto-allow lists. Entries may be a bare tool
// name, a qualified "server__tool" name, or the wildcard "*".
type Rules struct {
	byServer map[string]map[string]bool
}

// NewRules builds the predicate from a map of server name (or "*" for the
// global list) to allowed entries.
func NewRules(allowed map[string][]string) *Rules {
	byServer := make(map[string]map[string]bool, len(allowed))
	for server, entries := range allowed {
		set := make(map[string]bool, len(entries))
		for _, e := range entries {
			set[canon(e)] = true
		}
		byServer[canon(server)] = set
	}
	return &Rules{byServer: byServer}
}

// IsAutoAllowed implements the allow predicate over the server's own list
// and the global list.
func (r *Rules) IsAutoAllowed(server, tool string) bool {
	cs, ct := canon(server), canon(tool)
	qualified := cs + "__" + ct
	for _, set := range []map[string]bool{r.byServer[cs], r.byServer[GlobalKey]} {
		if set == nil {
			continue
		}
		if set["*"] || set[ct] || set[qualified] {
			return true
		}
	}
	return false
}
