package fsm

import (
	"strings"

	"jobybot/pkg/config"
	"jobybot/pkg/records"
	"jobybot/pkg/state"
)

// Trigger decides whether an idle message starts a flow.
type Trigger interface {
	Match(text string) bool
	Flow() state.Flow
	Role() records.Role
}

type phraseTrigger struct {
	flow     state.Flow
	role     records.Role
	commands []string
	phrases  []string
}

// NewPhraseTrigger matches exact /commands and case-insensitive substrings.
func NewPhraseTrigger(flow state.Flow, role records.Role, patterns ...string) Trigger {
	t := &phraseTrigger{flow: flow, role: role}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "/") {
			t.commands = append(t.commands, p)
		} else {
			t.phrases = append(t.phrases, p)
		}
	}
	return t
}

func (t *phraseTrigger) Flow() state.Flow   { return t.flow }
func (t *phraseTrigger) Role() records.Role { return t.role }

func (t *phraseTrigger) Match(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return false
	}

	if cmd := commandOf(normalized); cmd != "" {
		for _, c := range t.commands {
			if c == cmd {
				return true
			}
		}
	}
	for _, p := range t.phrases {
		if strings.Contains(normalized, p) {
			return true
		}
	}
	return false
}

// commandOf returns "/cmd" for "/cmd@botname args", or "" when text is not a command.
func commandOf(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0]
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return cmd
}

// TriggersFromConfig builds the ordered trigger table. Registration defaults to
// the seeker role; job posting always implies poster.
func TriggersFromConfig(list []config.TriggerConfig) []Trigger {
	out := make([]Trigger, 0, len(list))
	for _, tc := range list {
		flow := state.Flow(tc.Flow)
		role, ok := records.ParseRole(tc.Role)
		switch {
		case flow == state.FlowJobPosting:
			role = records.RolePoster
		case !ok:
			role = records.RoleSeeker
		}
		out = append(out, NewPhraseTrigger(flow, role, tc.Match...))
	}
	return out
}

// MatchTrigger returns the first trigger in table order that matches text.
func MatchTrigger(triggers []Trigger, text string) (Trigger, bool) {
	for _, t := range triggers {
		if t.Match(text) {
			return t, true
		}
	}
	return nil, false
}
