package config

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// FlowConfig holds the conversation texts, the entry trigger table and the menu.
type FlowConfig struct {
	Flows    map[string]FlowSpec `yaml:"flows"`
	Triggers []TriggerConfig     `yaml:"triggers"`
	Menu     MenuConfig          `yaml:"menu"`
	Messages Messages            `yaml:"messages"`
}

type FlowSpec struct {
	Title string       `yaml:"title"`
	Done  string       `yaml:"done"`
	Steps []StepConfig `yaml:"steps"`
}

type StepConfig struct {
	State    string `yaml:"state"`
	Field    string `yaml:"field"`
	Strategy string `yaml:"strategy"`
	Prompt   string `yaml:"prompt"`
	Invalid  string `yaml:"invalid"`
	Menu     string `yaml:"menu,omitempty"`
}

// TriggerConfig starts Flow when the idle text matches one of Match.
type TriggerConfig struct {
	Flow  string   `yaml:"flow"`
	Role  string   `yaml:"role,omitempty"`
	Match []string `yaml:"match"`
}

type MenuConfig struct {
	Placeholder  string       `yaml:"placeholder"`
	ShareContact string       `yaml:"share_contact"`
	TypeManually string       `yaml:"type_manually"`
	Cancel       string       `yaml:"cancel"`
	Buttons      []MenuButton `yaml:"buttons"`
}

type MenuButton struct {
	Label  string   `yaml:"label"`
	Action string   `yaml:"action"`
	Match  []string `yaml:"match,omitempty"`
}

type Messages struct {
	Welcome           string `yaml:"welcome"`
	Unrecognized      string `yaml:"unrecognized"`
	Help              string `yaml:"help"`
	Cancelled         string `yaml:"cancelled"`
	NothingToCancel   string `yaml:"nothing_to_cancel"`
	CommitFailed      string `yaml:"commit_failed"`
	InternalError     string `yaml:"internal_error"`
	ContactUnexpected string `yaml:"contact_unexpected"`
	NotImplemented    string `yaml:"not_implemented"`
	JobsHeader        string `yaml:"jobs_header"`
	NoJobs            string `yaml:"no_jobs"`
	OwnJobsHeader     string `yaml:"own_jobs_header"`
	NoOwnJobs         string `yaml:"no_own_jobs"`
	JobItem           string `yaml:"job_item"`
	Profile           string `yaml:"profile"`
	NoProfile         string `yaml:"no_profile"`
	ListFailed        string `yaml:"list_failed"`
}

const (
	FlowRegistration = "registration"
	FlowJobPosting   = "job_posting"

	ActionFindJobs      = "find_jobs"
	ActionPostJob       = "post_job"
	ActionMyJobs        = "my_jobs"
	ActionProfile       = "profile"
	ActionSubscriptions = "subscriptions"
	ActionHelp          = "help"
)

var knownActions = map[string]bool{
	ActionFindJobs:      true,
	ActionPostJob:       true,
	ActionMyJobs:        true,
	ActionProfile:       true,
	ActionSubscriptions: true,
	ActionHelp:          true,
}

var knownRoles = map[string]bool{"": true, "seeker": true, "poster": true}

var knownMenus = map[string]bool{"": true, "main": true, "phone_choice": true, "cancel": true, "none": true}

func (fc *FlowConfig) Validate() error {
	if fc == nil {
		return fmt.Errorf("config is nil")
	}
	if len(fc.Flows) == 0 {
		return fmt.Errorf("config validation failed: no flows defined")
	}

	for flowID, flow := range fc.Flows {
		if flowID != FlowRegistration && flowID != FlowJobPosting {
			return fmt.Errorf("config validation failed: unknown flow '%s'", flowID)
		}
		if len(flow.Steps) == 0 {
			return fmt.Errorf("config validation failed: flow '%s' has no steps", flowID)
		}
		if flow.Done == "" {
			return fmt.Errorf("config validation failed: flow '%s' has no done message", flowID)
		}
		if err := checkTemplate(flowID+".done", flow.Done); err != nil {
			return err
		}

		seen := make(map[string]bool)
		for i, step := range flow.Steps {
			if step.State == "" {
				return fmt.Errorf("config validation failed: step #%d in flow '%s' has no state", i+1, flowID)
			}
			if seen[step.State] {
				return fmt.Errorf("config validation failed: duplicate state '%s' in flow '%s'", step.State, flowID)
			}
			seen[step.State] = true

			if step.Prompt == "" {
				return fmt.Errorf("config validation failed: state '%s' in flow '%s' has no prompt", step.State, flowID)
			}
			if step.Field == "" {
				return fmt.Errorf("config validation failed: state '%s' in flow '%s' has no field", step.State, flowID)
			}
			if !knownMenus[step.Menu] {
				return fmt.Errorf("config validation failed: state '%s' in flow '%s' has unknown menu '%s'", step.State, flowID, step.Menu)
			}
			if err := validateStepWithStrategy(flowID, step); err != nil {
				return err
			}
		}
	}

	if len(fc.Triggers) == 0 {
		return fmt.Errorf("config validation failed: no triggers defined")
	}
	for i, tr := range fc.Triggers {
		if _, ok := fc.Flows[tr.Flow]; !ok {
			return fmt.Errorf("config validation failed: trigger #%d references unknown flow '%s'", i+1, tr.Flow)
		}
		if !knownRoles[tr.Role] {
			return fmt.Errorf("config validation failed: trigger #%d has unknown role '%s'", i+1, tr.Role)
		}
		if len(tr.Match) == 0 {
			return fmt.Errorf("config validation failed: trigger #%d has no match patterns", i+1)
		}
		for _, m := range tr.Match {
			if strings.TrimSpace(m) == "" {
				return fmt.Errorf("config validation failed: trigger #%d has an empty match pattern", i+1)
			}
		}
	}

	for i, b := range fc.Menu.Buttons {
		if b.Label == "" {
			return fmt.Errorf("config validation failed: menu button #%d has no label", i+1)
		}
		if !knownActions[b.Action] {
			return fmt.Errorf("config validation failed: menu button '%s' has unknown action '%s'", b.Label, b.Action)
		}
	}
	if fc.Menu.ShareContact == "" || fc.Menu.TypeManually == "" || fc.Menu.Cancel == "" {
		return fmt.Errorf("config validation failed: menu share_contact, type_manually and cancel labels are required")
	}

	required := map[string]string{
		"welcome":       fc.Messages.Welcome,
		"unrecognized":  fc.Messages.Unrecognized,
		"commit_failed": fc.Messages.CommitFailed,
		"cancelled":     fc.Messages.Cancelled,
	}
	for name, text := range required {
		if text == "" {
			return fmt.Errorf("config validation failed: message '%s' is empty", name)
		}
	}
	for name, text := range map[string]string{"job_item": fc.Messages.JobItem, "profile": fc.Messages.Profile} {
		if err := checkTemplate("messages."+name, text); err != nil {
			return err
		}
	}
	return nil
}

// Step returns the step configured for state in flow.
func (fc *FlowConfig) Step(flow, state string) (StepConfig, bool) {
	for _, s := range fc.Flows[flow].Steps {
		if s.State == state {
			return s, true
		}
	}
	return StepConfig{}, false
}

func checkTemplate(name, text string) error {
	if _, err := template.New(name).Parse(text); err != nil {
		return fmt.Errorf("config validation failed: template '%s': %w", name, err)
	}
	return nil
}

// Render executes a message template. Templates are checked by Validate, so a
// failure here falls back to the raw text.
func Render(name, text string, data any) string {
	tpl, err := template.New(name).Parse(text)
	if err != nil {
		return text
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return text
	}
	return buf.String()
}

// StepValidator checks a step against the strategy it names.
type StepValidator func(flowID string, step StepConfig) error

var (
	stepValidator StepValidator
	validatorMu   sync.RWMutex
)

func RegisterStepValidator(fn StepValidator) {
	validatorMu.Lock()
	defer validatorMu.Unlock()
	stepValidator = fn
}

func validateStepWithStrategy(flowID string, step StepConfig) error {
	fn := currentValidator()
	if fn == nil {
		switch step.Strategy {
		case "text", "digits", "phone":
			return nil
		default:
			return fmt.Errorf("config validation failed: state '%s' in flow '%s' has unknown strategy '%s'", step.State, flowID, step.Strategy)
		}
	}
	return fn(flowID, step)
}

func currentValidator() StepValidator {
	validatorMu.RLock()
	defer validatorMu.RUnlock()
	return stepValidator
}
