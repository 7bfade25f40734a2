package contextlog

import (
	"strings"

	"github.com/kgang/chronicle/pkg/ledger"
	"github.com/kgang/chronicle/pkg/types"
)

// preservedMarkers are literal content markers that force a turn to
// Preserved: explicit requirements, verbatim quoted material, and fenced
// blocks the agent must be able to reproduce exactly.
var preservedMarkers = []string{
	"must ",
	"required:",
	"critical:",
	"```",
	`"""`,
	"user said:",
}

// requiredMarkers are markers of reasoning and commitments: content that can
// be summarized under pressure but never silently dropped.
var requiredMarkers = []string{
	"therefore",
	"decision:",
	"conclusion:",
	"because",
	"i will",
	"we should",
}

// ClassifyByRole maps a turn's role to its baseline resource class: user
// turns are sacrosanct, system turns carry instructions, and everything the
// model or its tools produce starts out droppable.
func ClassifyByRole(role types.Role) ledger.Class {
	switch role {
	case types.RoleUser:
		return ledger.ClassPreserved
	case types.RoleSystem:
		return ledger.ClassRequired
	default:
		return ledger.ClassDroppable
	}
}

// ClassifyByContent scans content for literal markers and returns the class
// they imply. Preserved markers win over required markers; content with
// neither is droppable.
func ClassifyByContent(content string) ledger.Class {
	lowered := strings.ToLower(content)
	for _, marker := range preservedMarkers {
		if strings.Contains(lowered, marker) {
			return ledger.ClassPreserved
		}
	}
	for _, marker := range requiredMarkers {
		if strings.Contains(lowered, marker) {
			return ledger.ClassRequired
		}
	}
	return ledger.ClassDroppable
}
