package process

import "transline/internal/domain"

// TextTarget names the field a role's text edits land in.
type TextTarget int

const (
	TargetDocument TextTarget = iota
	TargetTranslation
)

// View names the status projection a role sees.
type View int

const (
	ViewClient View = iota
	ViewTranslator
	ViewReviewer
)

// Capabilities drive the role-specific behavior of a Process.
type Capabilities struct {
	Editable bool
	Target   TextTarget
	View     View
}

var capabilityTable = map[domain.Role]Capabilities{
	domain.RoleClient:     {Editable: false, Target: TargetDocument, View: ViewClient},
	domain.RoleTranslator: {Editable: true, Target: TargetTranslation, View: ViewTranslator},
	domain.RoleReviewer:   {Editable: false, Target: TargetTranslation, View: ViewReviewer},
}

// CapabilitiesFor returns the capability row of role.
func CapabilitiesFor(role domain.Role) (Capabilities, error) {
	c, ok := capabilityTable[role]
	if !ok {
		return Capabilities{}, domain.UnsupportedRoleError{Role: role}
	}
	return c, nil
}
