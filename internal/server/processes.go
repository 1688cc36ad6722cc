package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func registerProcesses(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "open-process",
		Method:        http.MethodPost,
		Path:          "/activities/{activity_id}/process",
		Summary:       "Open or fetch the caller's process for an activity",
		DefaultStatus: http.StatusOK,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ActivityID string              `path:"activity_id"`
		Body       *OpenProcessRequest `json:"body" required:"false"`
	}) (*struct {
		Body ProcessResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		identifier := principal.Identifier
		if input.Body != nil && input.Body.UserIdentifier != nil {
			identifier = *input.Body.UserIdentifier
		}
		p, err := cfg.Service.GetOrCreateProcess(ctx, input.ActivityID, principal.Role, identifier)
		if err != nil {
			return nil, cfg.handleError(err)
		}
		return &struct {
			Body ProcessResponse `json:"body"`
		}{Body: processResponse(p.Snapshot())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-text",
		Method:      http.MethodPatch,
		Path:        "/activities/{activity_id}/process",
		Summary:     "Change the text of the caller's process",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ActivityID string            `path:"activity_id"`
		Body       ChangeTextRequest `json:"body"`
	}) (*struct {
		Body MutationResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ok, err := cfg.Service.ChangeText(ctx, input.ActivityID, principal.Role, input.Body.Text)
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

	huma.Register(api, huma.Operation{
		OperationID: "restore-version",
		Method:      http.MethodPost,
		Path:        "/activities/{activity_id}/process/restore",
		Summary:     "Restore the most recent saved version",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *activityPath) (*struct {
		Body MutationResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ok, err := cfg.Service.RestoreLastVersion(ctx, input.ActivityID, principal.Role)
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

	huma.Register(api, huma.Operation{
		OperationID: "process-history",
		Method:      http.MethodGet,
		Path:        "/activities/{activity_id}/history",
		Summary:     "Saved versions of the caller's process, oldest first",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *activityPath) (*struct {
		Body historyResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		versions, err := cfg.Service.History(ctx, input.ActivityID, principal.Role)
		if err != nil {
			return nil, cfg.handleError(err)
		}
		return &struct {
			Body historyResponse `json:"body"`
		}{Body: historyResponse{Items: versionResponses(versions)}}, nil
	})
}
