package server

import (
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

	"auditline/internal/action"
	"auditline/internal/engine"
	"auditline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"no_usable_records"`
	Message string         `json:"message" example:"no usable records in log file"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Auditline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
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
	hcfg := huma.DefaultConfig("Auditline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerIngests(group, cfg.Engine)
	registerEntries(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerActions(group)
	registerRules(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
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
	if errors.Is(err, engine.ErrNoUsableRecords) {
		return newAPIError(http.StatusUnprocessableEntity, "no_usable_records", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
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
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Auditline API Docs</title>
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

func registerIngests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-ingest",
		Method:        http.MethodPost,
		Path:          "/ingests",
		Summary:       "Ingest and validate an instruction log",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateIngestRequest `json:"body"`
	}) (*struct {
		Body IngestRunResponse `json:"body"`
	}, error) {
		if input.Body.Content == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "content is required", nil)
		}
		actorID := input.Body.ActorID
		if actorID == "" {
			actorID = "api-user"
		}
		result, err := e.IngestLog(ctx, engine.IngestOptions{
			Raw:     input.Body.Content,
			Source:  input.Body.Source,
			ActorID: actorID,
		})
		if err != nil {
			if errors.Is(err, engine.ErrNoUsableRecords) {
				return nil, newAPIError(http.StatusUnprocessableEntity, "no_usable_records", err.Error(),
					map[string]any{"ingest_id": result.Ingest.ID, "parse_errors": len(result.Errors)})
			}
			return nil, handleError(err)
		}
		return &struct {
			Body IngestRunResponse `json:"body"`
		}{Body: ingestRunResponse(result)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-ingests",
		Method:      http.MethodGet,
		Path:        "/ingests",
		Summary:     "List ingests",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body []IngestResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListIngests(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []IngestResponse `json:"body"`
		}{Body: mapIngests(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ingest",
		Method:      http.MethodGet,
		Path:        "/ingests/{ingest_id}",
		Summary:     "Get ingest",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IngestID string `path:"ingest_id"`
	}) (*struct {
		Body IngestResponse `json:"body"`
	}, error) {
		in, err := e.Repo.GetIngest(ctx, input.IngestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IngestResponse `json:"body"`
		}{Body: ingestResponse(in)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ingest-errors",
		Method:      http.MethodGet,
		Path:        "/ingests/{ingest_id}/errors",
		Summary:     "List an ingest's parse errors",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IngestID string `path:"ingest_id"`
	}) (*struct {
		Body []ParseErrorResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetIngest(ctx, input.IngestID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListParseErrors(ctx, input.IngestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ParseErrorResponse `json:"body"`
		}{Body: mapParseErrors(items)}, nil
	})
}

func registerEntries(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-entries",
		Method:      http.MethodGet,
		Path:        "/ingests/{ingest_id}/entries",
		Summary:     "List an ingest's entries",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IngestID string `path:"ingest_id"`
		Category string `query:"category"`
		Status   string `query:"status"`
		Owner    string `query:"owner"`
	}) (*struct {
		Body []EntryResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetIngest(ctx, input.IngestID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListEntries(ctx, input.IngestID, repo.EntryFilter{
			Category: input.Category,
			Status:   input.Status,
			Owner:    input.Owner,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EntryResponse `json:"body"`
		}{Body: mapEntries(items)}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/ingests/{ingest_id}/report",
		Summary:     "Get an ingest's validation report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IngestID string `path:"ingest_id"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		report, err := e.Repo.GetReport(ctx, input.IngestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: reportResponse(report)}, nil
	})
}

func registerActions(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "resolve-action",
		Method:      http.MethodGet,
		Path:        "/actions/{code}",
		Summary:     "Resolve action code metadata",
	}, func(ctx context.Context, input *struct {
		Code string `path:"code"`
	}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		meta := action.Resolve(input.Code)
		return &struct {
			Body ActionResponse `json:"body"`
		}{Body: actionResponse(meta)}, nil
	})
}

func registerRules(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-rules",
		Method:      http.MethodGet,
		Path:        "/rules",
		Summary:     "Get the category rule catalog",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RulesResponse `json:"body"`
	}, error) {
		return &struct {
			Body RulesResponse `json:"body"`
		}{Body: rulesResponse(e.Config)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"20"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}
