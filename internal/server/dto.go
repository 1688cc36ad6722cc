package server

import (
	"encoding/json"

	"transline/internal/domain"
)

// Request payloads

type DeployRequest struct {
	ActivityID       string `json:"activity_id" minLength:"1"`
	Text             string `json:"text"`
	Instructions     string `json:"instructions,omitempty"`
	LanguageFrom     string `json:"language_from"`
	LanguageTo       string `json:"language_to"`
	TimeLimitMinutes int    `json:"time_limit_minutes,omitempty" minimum:"0"`
	TranslatorCount  int    `json:"translator_count,omitempty" minimum:"0"`
	ReviewerAPIKey   string `json:"reviewer_api_key,omitempty"`
}

type OpenProcessRequest struct {
	UserIdentifier *string `json:"user_identifier,omitempty"`
}

type ChangeTextRequest struct {
	Text string `json:"text"`
}

// Response payloads

type DocumentResponse struct {
	ID               int64  `json:"id"`
	ActivityID       string `json:"activity_id"`
	Text             string `json:"text"`
	Instructions     string `json:"instructions,omitempty"`
	LanguageFrom     string `json:"language_from"`
	LanguageTo       string `json:"language_to"`
	Status           string `json:"status" enum:"open,completed"`
	TimeLimitMinutes int    `json:"time_limit_minutes,omitempty"`
	TranslatorCount  int    `json:"translator_count,omitempty"`
	CreatedAt        string `json:"created_at" format:"date-time"`
}

type DeployResponse struct {
	Document DocumentResponse `json:"document"`
	URL      string           `json:"url"`
}

type ProcessResponse struct {
	ActivityID     string `json:"activity_id"`
	Role           string `json:"role" enum:"client,translator,reviewer"`
	UserID         string `json:"user_id,omitempty"`
	Editable       bool   `json:"editable"`
	TranslatedText string `json:"translated_text"`
	Versions       int    `json:"versions"`
	LastModifiedAt string `json:"last_modified_at,omitempty"`
	LastModifiedBy string `json:"last_modified_by,omitempty"`
}

type StatusResponse struct {
	Text           string `json:"text"`
	Instructions   string `json:"instructions,omitempty"`
	TranslatedText string `json:"translated_text,omitempty"`
	Status         string `json:"status"`
}

type MutationResponse struct {
	Applied bool           `json:"applied"`
	Status  StatusResponse `json:"status"`
}

type VersionResponse struct {
	Text       string `json:"text"`
	CapturedAt string `json:"captured_at"`
}

type historyResponse struct {
	Items []VersionResponse `json:"items"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ActivityID string         `json:"activity_id,omitempty"`
	Role       string         `json:"role,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type eventsResponse struct {
	Items []EventResponse `json:"items"`
}

// Conversion helpers

func documentResponse(d domain.Document) DocumentResponse {
	return DocumentResponse{
		ID:               d.ID,
		ActivityID:       d.ActivityID,
		Text:             d.Text,
		Instructions:     d.Instructions,
		LanguageFrom:     d.LanguageFrom,
		LanguageTo:       d.LanguageTo,
		Status:           string(d.Status),
		TimeLimitMinutes: d.TimeLimitMinutes,
		TranslatorCount:  d.TranslatorCount,
		CreatedAt:        d.CreatedAt,
	}
}

func processResponse(p domain.ActorProcess) ProcessResponse {
	return ProcessResponse{
		ActivityID:     p.ActivityID,
		Role:           string(p.Role),
		UserID:         p.UserID,
		Editable:       p.Editable,
		TranslatedText: p.TranslatedText,
		Versions:       len(p.History),
		LastModifiedAt: p.LastModifiedAt,
		LastModifiedBy: p.LastModifiedBy,
	}
}

func statusResponse(st *domain.DeployStatus) StatusResponse {
	if st == nil {
		return StatusResponse{}
	}
	return StatusResponse(*st)
}

func versionResponses(in []domain.TextVersion) []VersionResponse {
	out := make([]VersionResponse, 0, len(in))
	for _, v := range in {
		out = append(out, VersionResponse(v))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ActivityID: e.ActivityID,
		Role:       e.Role,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}
