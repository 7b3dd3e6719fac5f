package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"callsheet/internal/app"
	"callsheet/internal/domain"
	"callsheet/internal/engine"
	"callsheet/internal/progress"
	"callsheet/internal/repo"
	"callsheet/internal/runner"
)

// Config for the HTTP API handler.
type Config struct {
	Engine    engine.Engine
	Workspace string
	BasePath  string
	Auth      AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"outcome must be answered or no_answer"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Callsheet API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the error envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Callsheet API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	srv := handlers{engine: cfg.Engine, workspace: cfg.Workspace}

	registerDocs(router, basePath)
	registerHealth(group)
	srv.registerCampaigns(group)
	srv.registerRuns(group)
	srv.registerProgress(group)
	srv.registerReports(group, router, basePath)
	srv.registerEvents(group)
	srv.registerAPIKeys(group)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

type handlers struct {
	engine    engine.Engine
	workspace string
}

func (h handlers) roster() ([]domain.Record, error) {
	records, _, err := app.LoadRoster(h.workspace, "", h.engine.Config)
	return records, err
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, progress.ErrNotInitialized) {
		return newAPIError(http.StatusConflict, "not_initialized", err.Error(), nil)
	}
	if errors.Is(err, runner.ErrBadState) {
		return newAPIError(http.StatusConflict, "bad_state", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "not a survey option") || strings.Contains(lowered, "has no survey") || strings.Contains(lowered, "not active"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Callsheet API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func (h handlers) registerCampaigns(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-campaign",
		Method:        http.MethodPost,
		Path:          "/campaigns",
		Summary:       "Create campaign",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateCampaignRequest `json:"body"`
	}) (*struct {
		Body CampaignResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		records, err := h.roster()
		if err != nil {
			return nil, handleError(err)
		}
		c, err := h.engine.CreateCampaign(ctx, engine.CampaignCreateOptions{
			Name:    input.Body.Name,
			Filters: filterConditions(input.Body.Filters),
			ActorID: actorID,
		}, records)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CampaignResponse `json:"body"`
		}{Body: campaignResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-campaigns",
		Method:      http.MethodGet,
		Path:        "/campaigns",
		Summary:     "List campaigns",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []CampaignResponse `json:"body"`
	}, error) {
		items, err := h.engine.ListCampaigns(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CampaignResponse `json:"body"`
		}{Body: mapCampaigns(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-campaign",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}",
		Summary:     "Get campaign",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
	}) (*struct {
		Body CampaignResponse `json:"body"`
	}, error) {
		c, err := h.engine.GetCampaign(ctx, input.CampaignID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CampaignResponse `json:"body"`
		}{Body: campaignResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-campaign",
		Method:      http.MethodDelete,
		Path:        "/campaigns/{campaign_id}",
		Summary:     "Delete campaign",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.engine.DeleteCampaign(ctx, input.CampaignID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-campaign",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/refresh",
		Summary:     "Re-apply filters against the current roster",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
	}) (*struct {
		Body CampaignResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		records, err := h.roster()
		if err != nil {
			return nil, handleError(err)
		}
		c, err := h.engine.RefreshQueue(ctx, input.CampaignID, records, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CampaignResponse `json:"body"`
		}{Body: campaignResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-survey",
		Method:      http.MethodPut,
		Path:        "/campaigns/{campaign_id}/survey",
		Summary:     "Set or replace the campaign survey",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		CampaignID string           `path:"campaign_id"`
		Body       SetSurveyRequest `json:"body"`
	}) (*struct {
		Body CampaignResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := h.engine.SetSurvey(ctx, input.CampaignID, input.Body.Question, input.Body.Options, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CampaignResponse `json:"body"`
		}{Body: campaignResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-survey-active",
		Method:      http.MethodPut,
		Path:        "/campaigns/{campaign_id}/survey/active",
		Summary:     "Toggle whether the survey accepts responses",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		CampaignID string                 `path:"campaign_id"`
		Body       SetSurveyActiveRequest `json:"body"`
	}) (*struct {
		Body CampaignResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := h.engine.SetSurveyActive(ctx, input.CampaignID, input.Body.Active, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CampaignResponse `json:"body"`
		}{Body: campaignResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-reminder",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/reminders",
		Summary:     "Add callback dates for a contact",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		CampaignID string             `path:"campaign_id"`
		Body       AddReminderRequest `json:"body"`
	}) (*struct {
		Body CampaignResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := h.engine.AddReminder(ctx, input.CampaignID, input.Body.ContactID, input.Body.Dates, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CampaignResponse `json:"body"`
		}{Body: campaignResponse(c)}, nil
	})
}

func (h handlers) registerRuns(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "next-contact",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/next",
		Summary:     "Pick the next contact to call",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
		Strategy   string `query:"strategy" enum:"unattempted,missed" default:"unattempted"`
		SkipID     string `query:"skip_id"`
	}) (*struct {
		Body NextContactResponse `json:"body"`
	}, error) {
		strategy := runner.Strategy(input.Strategy)
		if strategy == "" {
			strategy = runner.StrategyUnattempted
		}
		id, ok, err := h.engine.NextContact(ctx, input.CampaignID, strategy, input.SkipID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body NextContactResponse `json:"body"`
		}{Body: NextContactResponse{ContactID: id, Done: !ok, Strategy: string(strategy)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-call",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/calls",
		Summary:     "Record a call outcome",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		CampaignID string            `path:"campaign_id"`
		Body       RecordCallRequest `json:"body"`
	}) (*struct {
		Body ProgressResponse `json:"body"`
	}, error) {
		if input.Body.ContactID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "contact_id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		snap, err := h.engine.RecordOutcome(ctx, input.CampaignID, input.Body.ContactID, input.Body.Outcome, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProgressResponse `json:"body"`
		}{Body: progressResponse(snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-survey",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/survey-responses",
		Summary:     "Record a survey answer",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		CampaignID string              `path:"campaign_id"`
		Body       RecordSurveyRequest `json:"body"`
	}) (*struct {
		Body ProgressResponse `json:"body"`
	}, error) {
		if input.Body.ContactID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "contact_id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		snap, err := h.engine.RecordSurvey(ctx, input.CampaignID, input.Body.ContactID, input.Body.Answer, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProgressResponse `json:"body"`
		}{Body: progressResponse(snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-missed",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/clear-missed",
		Summary:     "Reset no_answer outcomes for a retry pass",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
	}) (*struct {
		Body ProgressResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		snap, err := h.engine.ClearMissed(ctx, input.CampaignID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProgressResponse `json:"body"`
		}{Body: progressResponse(snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-completed",
		Method:      http.MethodPut,
		Path:        "/campaigns/{campaign_id}/completed",
		Summary:     "Set the advisory completed flag",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		CampaignID string              `path:"campaign_id"`
		Body       SetCompletedRequest `json:"body"`
	}) (*struct {
		Body ProgressResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		snap, err := h.engine.MarkCompleted(ctx, input.CampaignID, input.Body.Completed, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProgressResponse `json:"body"`
		}{Body: progressResponse(snap)}, nil
	})
}

func (h handlers) registerProgress(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "campaign-progress",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/progress",
		Summary:     "Full progress snapshot",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
	}) (*struct {
		Body ProgressResponse `json:"body"`
	}, error) {
		if _, err := h.engine.GetCampaign(ctx, input.CampaignID); err != nil {
			return nil, handleError(err)
		}
		snap, err := h.engine.CampaignProgress(ctx, input.CampaignID)
		if err != nil {
			return nil, handleError(err)
		}
		if snap == nil {
			snap = &domain.CampaignProgress{CampaignID: input.CampaignID, Contacts: map[string]domain.ContactProgress{}}
		}
		return &struct {
			Body ProgressResponse `json:"body"`
		}{Body: progressResponse(*snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "campaign-summary",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/summary",
		Summary:     "Aggregate call totals",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
	}) (*struct {
		Body TotalsResponse `json:"body"`
	}, error) {
		if _, err := h.engine.GetCampaign(ctx, input.CampaignID); err != nil {
			return nil, handleError(err)
		}
		totals, err := h.engine.Summary(ctx, input.CampaignID)
		if err != nil {
			return nil, handleError(err)
		}
		snap, err := h.engine.CampaignProgress(ctx, input.CampaignID)
		if err != nil {
			return nil, handleError(err)
		}
		completed := snap != nil && snap.Completed
		return &struct {
			Body TotalsResponse `json:"body"`
		}{Body: TotalsResponse{
			Total:     totals.Total,
			Made:      totals.Made,
			Answered:  totals.Answered,
			Missed:    totals.Missed,
			Completed: completed,
		}}, nil
	})
}

func (h handlers) registerReports(api huma.API, router chi.Router, basePath string) {
	huma.Register(api, huma.Operation{
		OperationID: "report-rows",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/report/rows",
		Summary:     "Flat report rows for the external row store",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
	}) (*struct {
		Body ReportRowsResponse `json:"body"`
	}, error) {
		records, err := h.roster()
		if err != nil {
			return nil, handleError(err)
		}
		rows, err := h.engine.ReportRows(ctx, input.CampaignID, records)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReportRowsResponse `json:"body"`
		}{Body: ReportRowsResponse{Rows: rows}}, nil
	})

	// CSV downloads bypass huma: the body is the file itself.
	csvHandler := func(render func(ctx context.Context, campaignID string) (string, error), filename string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			campaignID := chi.URLParam(r, "campaign_id")
			out, err := render(r.Context(), campaignID)
			if err != nil {
				respondStatusError(w, handleError(err))
				return
			}
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
			io.WriteString(w, out)
		}
	}
	router.Get(basePath+"/campaigns/{campaign_id}/report/calls.csv", csvHandler(h.engine.CallLogCSV, "calls.csv"))
	router.Get(basePath+"/campaigns/{campaign_id}/report/surveys.csv", csvHandler(h.engine.SurveyLogCSV, "surveys.csv"))
	router.Get(basePath+"/campaigns/{campaign_id}/report/summary.csv", csvHandler(func(ctx context.Context, campaignID string) (string, error) {
		records, err := h.roster()
		if err != nil {
			return "", err
		}
		return h.engine.SummaryCSV(ctx, campaignID, records)
	}, "summary.csv"))
}

func (h handlers) registerAPIKeys(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-apikey",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Issue an API key",
		Description:   "The plaintext key is returned once and never stored.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyCreatedResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		owner := input.Body.ActorID
		if owner == "" {
			owner = actorID
		}
		secret := uuid.NewString()
		key := domain.APIKey{
			ID:      uuid.NewString(),
			ActorID: owner,
			Name:    input.Body.Name,
			KeyHash: repo.HashAPIKey(secret),
		}
		if err := h.engine.Repo.InsertAPIKey(ctx, key); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyCreatedResponse `json:"body"`
		}{Body: APIKeyCreatedResponse{ID: key.ID, ActorID: key.ActorID, Name: key.Name, Key: secret}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-apikeys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		keys, err := h.engine.Repo.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-apikey",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{key_id}",
		Summary:     "Delete an API key",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if err := h.engine.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func (h handlers) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest audit events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		CampaignID string `query:"campaign_id"`
		Type       string `query:"type"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		items, err := h.engine.Repo.LatestEvents(ctx, limit, input.CampaignID, input.Type, "", "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}
