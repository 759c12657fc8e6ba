// Package browser drives a headless Chromium for UI verification. It exposes
// the small set of page operations a verification scenario needs, backed by
// either playwright-go or go-rod.
package browser

import (
	"fmt"
	"strconv"
)

// Role is an ARIA role accepted by role-based lookups.
type Role string

const (
	RoleLink     Role = "link"
	RoleTab      Role = "tab"
	RoleButton   Role = "button"
	RoleCheckbox Role = "checkbox"
)

// Target identifies one element on the page. Exactly one locator kind is set:
// Role (with an optional accessible Name), Label, Placeholder or ID.
type Target struct {
	Role        Role   `yaml:"role,omitempty" json:"role,omitempty"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Label       string `yaml:"label,omitempty" json:"label,omitempty"`
	Placeholder string `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	ID          string `yaml:"id,omitempty" json:"id,omitempty"`
}

func ByRole(role Role, name string) Target { return Target{Role: role, Name: name} }
func ByLabel(label string) Target          { return Target{Label: label} }
func ByPlaceholder(text string) Target     { return Target{Placeholder: text} }
func ByID(id string) Target                { return Target{ID: id} }

func (t Target) String() string {
	switch {
	case t.Role != "" && t.Name != "":
		return fmt.Sprintf("%s %s", t.Role, strconv.Quote(t.Name))
	case t.Role != "":
		return string(t.Role)
	case t.Label != "":
		return "label " + strconv.Quote(t.Label)
	case t.Placeholder != "":
		return "placeholder " + strconv.Quote(t.Placeholder)
	case t.ID != "":
		return "#" + t.ID
	}
	return "<empty target>"
}

// cssAttr builds an attribute selector such as [id="startIp"].
func cssAttr(name, value string) string {
	return "[" + name + "=" + strconv.Quote(value) + "]"
}
