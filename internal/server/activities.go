package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"transline/internal/engine"
)

type activityPath struct {
	ActivityID string `path:"activity_id"`
}

func activityURL(serviceURL, activityID string) string {
	return strings.TrimRight(serviceURL, "/") + "/atividade/" + url.PathEscape(activityID)
}

func registerActivities(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "deploy-activity",
		Method:        http.MethodPost,
		Path:          "/activities",
		Summary:       "Register the document of an activity",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DeployRequest `json:"body"`
	}) (*struct {
		Body DeployResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		doc, err := cfg.Service.CreateDocument(ctx, engine.DeployRequest{
			ActivityID:       input.Body.ActivityID,
			Text:             input.Body.Text,
			Instructions:     input.Body.Instructions,
			LanguageFrom:     input.Body.LanguageFrom,
			LanguageTo:       input.Body.LanguageTo,
			TimeLimitMinutes: input.Body.TimeLimitMinutes,
			TranslatorCount:  input.Body.TranslatorCount,
			ReviewerAPIKey:   input.Body.ReviewerAPIKey,
		})
		if err != nil {
			return nil, cfg.handleError(err)
		}
		return &struct {
			Body DeployResponse `json:"body"`
		}{Body: DeployResponse{
			Document: documentResponse(doc),
			URL:      activityURL(cfg.ServiceURL, doc.ActivityID),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activity-status",
		Method:      http.MethodGet,
		Path:        "/activities/{activity_id}/status",
		Summary:     "Role-shaped status of an activity",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *activityPath) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st := cfg.Service.Status(ctx, input.ActivityID, principal.Role)
		if st == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no process for this activity and role", map[string]any{
				"activity_id": input.ActivityID,
				"role":        string(principal.Role),
			})
		}
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: statusResponse(st)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-activity",
		Method:      http.MethodPost,
		Path:        "/activities/{activity_id}/complete",
		Summary:     "Complete the caller's process and its document",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *activityPath) (*struct {
		Body MutationResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ok, err := cfg.Service.CompleteProcess(ctx, input.ActivityID, principal.Role)
		if err != nil {
			return nil, cfg.handleError(err)
		}
		return &struct {
			Body MutationResponse `json:"body"`
		}{Body: MutationResponse{
			Applied: ok,
			Status:  statusResponse(cfg.Service.Status(ctx, input.ActivityID, principal.Role)),
		}}, nil
	})
}

func registerEvents(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activity-events",
		Method:      http.MethodGet,
		Path:        "/activities/{activity_id}/events",
		Summary:     "List recent audit events of an activity",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ActivityID string `path:"activity_id"`
		Type       string `query:"type"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body eventsResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		resp := eventsResponse{Items: []EventResponse{}}
		if cfg.Events == nil {
			return &struct {
				Body eventsResponse `json:"body"`
			}{Body: resp}, nil
		}
		items, err := cfg.Events.LatestEvents(ctx, normalizeLimit(input.Limit), input.ActivityID, input.Type)
		if err != nil {
			return nil, cfg.handleError(err)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body eventsResponse `json:"body"`
		}{Body: resp}, nil
	})
}
