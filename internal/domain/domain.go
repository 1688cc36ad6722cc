package domain

import "strings"

// Role identifies the actor type a process is opened for.
type Role string

const (
	RoleClient     Role = "client"
	RoleTranslator Role = "translator"
	RoleReviewer   Role = "reviewer"
)

// Roles lists every supported role in a stable order.
var Roles = []Role{RoleClient, RoleTranslator, RoleReviewer}

// ParseRole maps a caller-supplied role name to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleClient:
		return RoleClient, nil
	case RoleTranslator:
		return RoleTranslator, nil
	case RoleReviewer:
		return RoleReviewer, nil
	}
	return "", UnsupportedRoleError{Role: Role(s)}
}

func (r Role) String() string { return string(r) }

type DocumentStatus string

const (
	StatusOpen      DocumentStatus = "open"
	StatusCompleted DocumentStatus = "completed"
)

type Document struct {
	ID               int64          `json:"id"`
	ActivityID       string         `json:"activity_id"`
	Text             string         `json:"text"`
	Instructions     string         `json:"instructions,omitempty"`
	LanguageFrom     string         `json:"language_from"`
	LanguageTo       string         `json:"language_to"`
	Status           DocumentStatus `json:"status" enum:"open,completed"`
	TimeLimitMinutes int            `json:"time_limit_minutes,omitempty"`
	TranslatorCount  int            `json:"translator_count,omitempty"`
	CreatedAt        string         `json:"created_at" format:"date-time"`
}

// TextVersion is an immutable snapshot of a process's translated text.
type TextVersion struct {
	Text       string `json:"text"`
	CapturedAt string `json:"captured_at" format:"date-time"`
}

// ActorProcess is a value snapshot of a role process.
type ActorProcess struct {
	ActivityID     string        `json:"activity_id"`
	Role           Role          `json:"role" enum:"client,translator,reviewer"`
	UserID         string        `json:"user_id,omitempty"`
	Editable       bool          `json:"editable"`
	TranslatedText string        `json:"translated_text"`
	History        []TextVersion `json:"history,omitempty"`
	LastModifiedAt string        `json:"last_modified_at,omitempty" format:"date-time"`
	LastModifiedBy string        `json:"last_modified_by,omitempty"`
}

// DeployStatus is the role-shaped status projection returned to callers.
type DeployStatus struct {
	Text           string `json:"text"`
	Instructions   string `json:"instructions,omitempty"`
	TranslatedText string `json:"translated_text,omitempty"`
	Status         string `json:"status"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ActivityID string `json:"activity_id,omitempty"`
	Role       string `json:"role,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type User struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	ActivityID string `json:"activity_id,omitempty"`
	Name       string `json:"name,omitempty"`
	KeyHash    string `json:"key_hash"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}
