package interaction

import (
	"fmt"
	"strings"
)

// customIDPrefix namespaces every component id this service emits, so
// components created by other bots or older deployments decode to a noop
// instead of a misfire.
const customIDPrefix = "gsync"

// customIDMaxLength is Discord's hard limit for a component custom id.
const customIDMaxLength = 100

// Verbs carried inside component custom ids.
const (
	VerbNoop          = "noop"
	VerbTaskView      = "task-view"
	VerbTaskComplete  = "task-complete"
	VerbTaskAssign    = "task-assign"
	VerbTaskPin       = "task-pin"
	VerbTimeLog       = "time-log"
	VerbTaskCreate    = "task-create"
	VerbNoteCreate    = "note-create"
	VerbWizardStart   = "wizard-start"
	VerbWizardSelect  = "wizard-select"
	VerbWizardConfirm = "wizard-confirm"
	VerbWizardCancel  = "wizard-cancel"
	VerbSelectUser    = "select-user"
	VerbSelectProject = "select-project"
)

var knownVerbs = map[string]struct{}{
	VerbNoop:          {},
	VerbTaskView:      {},
	VerbTaskComplete:  {},
	VerbTaskAssign:    {},
	VerbTaskPin:       {},
	VerbTimeLog:       {},
	VerbTaskCreate:    {},
	VerbNoteCreate:    {},
	VerbWizardStart:   {},
	VerbWizardSelect:  {},
	VerbWizardConfirm: {},
	VerbWizardCancel:  {},
	VerbSelectUser:    {},
	VerbSelectProject: {},
}

// Action is a decoded component custom id.
type Action struct {
	Verb string
	IDs  []string
}

// Encode packs a verb and its entity ids into a component custom id.
// It fails when an id contains the separator or the result would exceed
// Discord's length limit, both of which would corrupt the round trip.
func Encode(verb string, ids ...string) (string, error) {
	if _, ok := knownVerbs[verb]; !ok {
		return "", fmt.Errorf("unknown interaction verb: %s", verb)
	}
	parts := make([]string, 0, len(ids)+2)
	parts = append(parts, customIDPrefix, verb)
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return "", fmt.Errorf("empty id for verb %s", verb)
		}
		if strings.Contains(id, ":") {
			return "", fmt.Errorf("id %q contains the separator", id)
		}
		parts = append(parts, id)
	}
	customID := strings.Join(parts, ":")
	if len(customID) > customIDMaxLength {
		return "", fmt.Errorf("custom id exceeds %d characters: %s", customIDMaxLength, customID)
	}
	return customID, nil
}

// Decode parses a component custom id. It never fails: anything this
// service did not emit, including truncated or corrupted ids, comes back
// as a noop Action.
func Decode(customID string) Action {
	parts := strings.Split(customID, ":")
	if len(parts) < 2 || parts[0] != customIDPrefix {
		return Action{Verb: VerbNoop}
	}
	verb := parts[1]
	if _, ok := knownVerbs[verb]; !ok {
		return Action{Verb: VerbNoop}
	}
	ids := parts[2:]
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return Action{Verb: VerbNoop}
		}
	}
	return Action{Verb: verb, IDs: ids}
}

// MustEncode is for ids whose lengths are known at call sites, e.g. wizard
// controls with no entity ids. It panics on the errors Encode would return.
func MustEncode(verb string, ids ...string) string {
	customID, err := Encode(verb, ids...)
	if err != nil {
		panic(err)
	}
	return customID
}
