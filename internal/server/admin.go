package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"taskbot/internal/alerts"
	"taskbot/internal/directory"
	"taskbot/internal/domain"
	"taskbot/internal/repo"
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func registerAlerts(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "run-alerts",
		Method:      http.MethodPost,
		Path:        "/alerts/run",
		Summary:     "Send overdue alerts now",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body alerts.Report `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		rep, err := cfg.Alerts.Run(ctx)
		if err != nil {
			cfg.Log.Error("manual alert run", zap.Error(err))
			return nil, handleError(err)
		}
		return &struct {
			Body alerts.Report `json:"body"`
		}{Body: rep}, nil
	})
}

type phonePath struct {
	Phone string `path:"phone" doc:"Sender phone number as received from the transport"`
}

func registerSessions(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{phone}",
		Summary:     "Show live conversation contexts for a phone",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *phonePath) (*struct {
		Body map[string]json.RawMessage `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		snap, err := cfg.Sessions.Snapshot(ctx, directory.NormalizePhone(input.Phone))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]json.RawMessage `json:"body"`
		}{Body: snap}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "clear-session",
		Method:        http.MethodDelete,
		Path:          "/sessions/{phone}",
		Summary:       "Drop every conversation context for a phone",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *phonePath) (*struct{}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		if err := cfg.Sessions.ClearAll(ctx, directory.NormalizePhone(input.Phone)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Assignee string `query:"assignee"`
		Status   string `query:"status" enum:"Not Started,In Progress,Completed,On Hold"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		tasks, err := cfg.Tasks.ListTasks(ctx, repo.TaskFilters{
			AssigneeID: input.Assignee,
			Status:     domain.Status(input.Status),
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: tasks}, nil
	})
}

func registerEvents(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent task events",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		EntityID string `query:"entity_id"`
		Limit    int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		items, err := cfg.Repo.LatestEvents(ctx, normalizeLimit(input.Limit), input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
