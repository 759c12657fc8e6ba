package verify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gotrs-io/settingscheck/internal/browser"
)

// Action is the kind of a scenario step.
type Action string

const (
	ActionSay           Action = "say"
	ActionGoto          Action = "goto"
	ActionExpectVisible Action = "expect_visible"
	ActionClick         Action = "click"
	ActionCheck         Action = "check"
	ActionExpectURL     Action = "expect_url"
	ActionFill          Action = "fill"
	ActionReload        Action = "reload"
	ActionExpectValue   Action = "expect_value"
	ActionScreenshot    Action = "screenshot"
)

// Step is one entry of a scenario. Which fields are used depends on Action.
type Step struct {
	Action  Action          `yaml:"action" json:"action"`
	Message string          `yaml:"message,omitempty" json:"message,omitempty"`
	Path    string          `yaml:"path,omitempty" json:"path,omitempty"`
	Target  *browser.Target `yaml:"target,omitempty" json:"target,omitempty"`
	Value   string          `yaml:"value,omitempty" json:"value,omitempty"`
}

// Scenario is an ordered list of steps executed against one page.
type Scenario struct {
	Name  string `yaml:"name" json:"name"`
	Steps []Step `yaml:"steps" json:"steps"`
}

func say(msg string) Step { return Step{Action: ActionSay, Message: msg} }

func on(action Action, t browser.Target) Step {
	return Step{Action: action, Target: &t}
}

func fill(id, value string) Step {
	t := browser.ByID(id)
	return Step{Action: ActionFill, Target: &t, Value: value}
}

func expectValue(id, value string) Step {
	t := browser.ByID(id)
	return Step{Action: ActionExpectValue, Target: &t, Value: value}
}

// DefaultScenario returns the settings navigation and persistence check:
// open the home page, follow "Configure Settings", enable Microsoft Auth on
// the Network tab, fill and save the range and credentials, reload, assert
// the values persisted and capture a screenshot.
func DefaultScenario() Scenario {
	configure := browser.ByRole(browser.RoleLink, "Configure Settings")
	network := browser.ByRole(browser.RoleTab, "Network")

	return Scenario{
		Name: "settings-navigation-and-save",
		Steps: []Step{
			say("Navigating to home..."),
			{Action: ActionGoto},

			say("Finding Configure Settings button..."),
			on(ActionExpectVisible, configure),

			say("Clicking settings button..."),
			on(ActionClick, configure),
			{Action: ActionExpectURL, Path: "/settings.html"},

			on(ActionExpectVisible, network),
			on(ActionExpectVisible, browser.ByRole(browser.RoleTab, "Security")),

			say("Checking network tab auth fields..."),
			on(ActionClick, network),
			on(ActionCheck, browser.ByLabel("Microsoft Auth")),
			on(ActionExpectVisible, browser.ByPlaceholder("Email")),
			on(ActionExpectVisible, browser.ByPlaceholder("Password (Optional)")),

			say("Filling settings..."),
			fill("startIp", "192.168.1.1"),
			fill("endIp", "192.168.1.255"),
			fill("email", "test@example.com"),
			fill("authPassword", "secret123"),

			say("Saving changes..."),
			on(ActionClick, browser.ByRole(browser.RoleButton, "Save Changes")),

			say("Verifying persistence..."),
			{Action: ActionReload},
			expectValue("startIp", "192.168.1.1"),
			expectValue("email", "test@example.com"),
			expectValue("authPassword", "secret123"),

			say("Taking screenshot..."),
			{Action: ActionScreenshot},
		},
	}
}

// Validate rejects scenarios that could not run to completion regardless of
// the page, so nothing is launched for them. Every problem is reported.
func (s Scenario) Validate() error {
	if len(s.Steps) == 0 {
		return errors.New("scenario has no steps")
	}
	if err := validateSchema(s); err != nil {
		return err
	}
	var errs []error
	for i, st := range s.Steps {
		if err := st.checkPath(); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i+1, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks a single step as if it were the whole scenario.
func (st Step) Validate() error {
	return Scenario{Steps: []Step{st}}.Validate()
}

// checkPath requires paths to be absolute so that joining them onto the
// base URL yields a well-formed URL.
func (st Step) checkPath() error {
	if st.Path != "" && !strings.HasPrefix(st.Path, "/") {
		return fmt.Errorf("path %q must start with /", st.Path)
	}
	return nil
}

// Describe renders the step for logs and error messages.
func (st Step) Describe() string {
	switch st.Action {
	case ActionSay:
		return "say " + strconv.Quote(st.Message)
	case ActionGoto:
		if st.Path == "" {
			return "goto base URL"
		}
		return "goto " + st.Path
	case ActionExpectURL:
		if st.Path == "" {
			return "expect URL to be the base URL"
		}
		return "expect URL to end with " + st.Path
	case ActionExpectVisible:
		return fmt.Sprintf("expect %s visible", st.Target)
	case ActionClick:
		return fmt.Sprintf("click %s", st.Target)
	case ActionCheck:
		return fmt.Sprintf("check %s", st.Target)
	case ActionFill:
		return fmt.Sprintf("fill %s with %q", st.Target, st.Value)
	case ActionExpectValue:
		return fmt.Sprintf("expect %s to have value %q", st.Target, st.Value)
	case ActionReload:
		return "reload"
	case ActionScreenshot:
		return "screenshot"
	}
	return string(st.Action)
}
