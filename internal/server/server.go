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

	"factoryline/internal/domain"
	"factoryline/internal/engine"
	"factoryline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"insufficient_stock"`
	Message string         `json:"message" example:"workstation 7 PRODUCT 1 holds 5, delta -6"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Factoryline API.
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Factoryline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerPlants(group, cfg.Engine)
	registerStock(group, cfg.Engine)
	registerLedger(group, cfg.Engine)
	registerThresholds(group, cfg.Engine)
	registerOrders(group, cfg.Engine)
	registerOrderActions(group, cfg.Engine)
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
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrInsufficientStock):
		return newAPIError(http.StatusConflict, "insufficient_stock", err.Error(), nil)
	case errors.Is(err, engine.ErrIllegalTransition):
		return newAPIError(http.StatusConflict, "illegal_transition", err.Error(), nil)
	case errors.Is(err, engine.ErrDuplicateThreshold):
		return newAPIError(http.StatusConflict, "duplicate_threshold", err.Error(), nil)
	case errors.Is(err, engine.ErrSchedulerUnavailable):
		return newAPIError(http.StatusServiceUnavailable, "scheduler_unavailable", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "must") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
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
	case http.StatusServiceUnavailable:
		return "scheduler_unavailable"
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
    <title>Factoryline API Docs</title>
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

func registerPlants(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "init-plant",
		Method:        http.MethodPost,
		Path:          "/plants",
		Summary:       "Initialize plant",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			ID   string `json:"id" minLength:"1"`
			Name string `json:"name,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Plant `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.InitPlant(ctx, input.Body.ID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Plant `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-plants",
		Method:      http.MethodGet,
		Path:        "/plants",
		Summary:     "List plants",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Plant `json:"body"`
	}, error) {
		items, err := e.Repo.ListPlants(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Plant `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-plant",
		Method:      http.MethodGet,
		Path:        "/plants/{plant_id}",
		Summary:     "Get plant",
	}, func(ctx context.Context, input *struct {
		PlantID string `path:"plant_id"`
	}) (*struct {
		Body domain.Plant `json:"body"`
	}, error) {
		p, err := e.Repo.GetPlant(ctx, input.PlantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Plant `json:"body"`
		}{Body: p}, nil
	})
}

func registerStock(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-stock",
		Method:      http.MethodGet,
		Path:        "/stock",
		Summary:     "List stock records",
	}, func(ctx context.Context, input *struct {
		WorkstationID int    `query:"workstation_id" minimum:"0"`
		ItemType      string `query:"item_type" enum:"PRODUCT,MODULE,PART,"`
	}) (*struct {
		Body []domain.StockRecord `json:"body"`
	}, error) {
		f := repo.StockFilters{ItemType: input.ItemType}
		if input.WorkstationID > 0 {
			ws := input.WorkstationID
			f.WorkstationID = &ws
		}
		items, err := e.Repo.ListStock(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.StockRecord `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-stock",
		Method:      http.MethodGet,
		Path:        "/stock/{workstation_id}/{item_type}/{item_id}",
		Summary:     "Get one stock record",
	}, func(ctx context.Context, input *struct {
		WorkstationID int    `path:"workstation_id" minimum:"1" maximum:"9"`
		ItemType      string `path:"item_type" enum:"PRODUCT,MODULE,PART"`
		ItemID        int    `path:"item_id" minimum:"1"`
	}) (*struct {
		Body domain.StockRecord `json:"body"`
	}, error) {
		rec, err := e.Repo.GetStock(ctx, input.WorkstationID, input.ItemType, input.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.StockRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "adjust-stock",
		Method:      http.MethodPost,
		Path:        "/stock/adjust",
		Summary:     "Apply a signed stock adjustment",
	}, func(ctx context.Context, input *struct {
		Body struct {
			WorkstationID int    `json:"workstation_id" minimum:"1" maximum:"9"`
			ItemType      string `json:"item_type" enum:"PRODUCT,MODULE,PART"`
			ItemID        int    `json:"item_id" minimum:"1"`
			Delta         int    `json:"delta"`
			ReasonCode    string `json:"reason_code,omitempty"`
			OrderRef      string `json:"order_ref,omitempty"`
			Notes         string `json:"notes,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.LedgerEntry `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.Adjust(ctx, engine.AdjustOptions{
			WorkstationID: input.Body.WorkstationID,
			ItemType:      input.Body.ItemType,
			ItemID:        input.Body.ItemID,
			Delta:         input.Body.Delta,
			ReasonCode:    input.Body.ReasonCode,
			OrderRef:      input.Body.OrderRef,
			Notes:         input.Body.Notes,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LedgerEntry `json:"body"`
		}{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-stock-level",
		Method:      http.MethodPut,
		Path:        "/stock/level",
		Summary:     "Set an absolute stock level",
		Description: "Administrative write. The target is converted to a delta and recorded as an ADMIN_RESET ledger entry.",
	}, func(ctx context.Context, input *struct {
		Body struct {
			WorkstationID int    `json:"workstation_id" minimum:"1" maximum:"9"`
			ItemType      string `json:"item_type" enum:"PRODUCT,MODULE,PART"`
			ItemID        int    `json:"item_id" minimum:"1"`
			Quantity      int    `json:"quantity" minimum:"0"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			Record domain.StockRecord  `json:"record"`
			Entry  *domain.LedgerEntry `json:"entry,omitempty"`
		} `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, entry, err := e.SetStockLevel(ctx, input.Body.WorkstationID, input.Body.ItemType, input.Body.ItemID, input.Body.Quantity, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Record domain.StockRecord  `json:"record"`
				Entry  *domain.LedgerEntry `json:"entry,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Record = rec
		out.Body.Entry = entry
		return out, nil
	})
}

func registerLedger(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-ledger",
		Method:      http.MethodGet,
		Path:        "/ledger",
		Summary:     "List ledger entries, most recent first",
	}, func(ctx context.Context, input *struct {
		WorkstationID int    `query:"workstation_id" minimum:"0"`
		ItemType      string `query:"item_type" enum:"PRODUCT,MODULE,PART,"`
		ItemID        int    `query:"item_id" minimum:"0"`
		Limit         int    `query:"limit" minimum:"0" maximum:"1000"`
	}) (*struct {
		Body []domain.LedgerEntry `json:"body"`
	}, error) {
		f := repo.LedgerFilters{ItemType: input.ItemType, Limit: input.Limit}
		if input.WorkstationID > 0 {
			ws := input.WorkstationID
			f.WorkstationID = &ws
		}
		if input.ItemID > 0 {
			id := input.ItemID
			f.ItemID = &id
		}
		items, err := e.History(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.LedgerEntry `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recent-ledger",
		Method:      http.MethodGet,
		Path:        "/ledger/recent",
		Summary:     "List the most recent ledger entries",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" minimum:"0" maximum:"1000"`
	}) (*struct {
		Body []domain.LedgerEntry `json:"body"`
	}, error) {
		items, err := e.Recent(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.LedgerEntry `json:"body"`
		}{Body: items}, nil
	})
}

func registerThresholds(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-thresholds",
		Method:      http.MethodGet,
		Path:        "/thresholds",
		Summary:     "List low-stock thresholds",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.LowStockThreshold `json:"body"`
	}, error) {
		items, err := e.ListThresholds(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.LowStockThreshold `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-thresholds",
		Method:      http.MethodPut,
		Path:        "/thresholds",
		Summary:     "Create or update low-stock thresholds",
		Description: "Null workstation_id or item_id acts as a wildcard. A duplicate (workstation, item type, item) key updates the existing row.",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Items []engine.ThresholdUpsert `json:"items" minItems:"1"`
		} `json:"body"`
	}) (*struct {
		Body []domain.LowStockThreshold `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.UpsertThresholds(ctx, input.Body.Items, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.LowStockThreshold `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-threshold",
		Method:      http.MethodDelete,
		Path:        "/thresholds/{id}",
		Summary:     "Delete a threshold",
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteThreshold(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-alerts",
		Method:      http.MethodGet,
		Path:        "/alerts",
		Summary:     "Evaluate low-stock alerts",
	}, func(ctx context.Context, input *struct {
		WorkstationID int `query:"workstation_id" minimum:"0"`
	}) (*struct {
		Body []domain.LowStockAlert `json:"body"`
	}, error) {
		var ws *int
		if input.WorkstationID > 0 {
			v := input.WorkstationID
			ws = &v
		}
		items, err := e.EvaluateThresholds(ctx, ws)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.LowStockAlert `json:"body"`
		}{Body: items}, nil
	})
}

func registerOrders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-orders",
		Method:      http.MethodGet,
		Path:        "/orders",
		Summary:     "List orders, urgent first",
	}, func(ctx context.Context, input *struct {
		Type          string `query:"type"`
		Status        string `query:"status"`
		ParentID      string `query:"parent_id"`
		WorkstationID int    `query:"workstation_id" minimum:"0"`
		Limit         int    `query:"limit" minimum:"0" maximum:"1000"`
	}) (*struct {
		Body []domain.Order `json:"body"`
	}, error) {
		f := repo.OrderFilters{Type: input.Type, Status: input.Status, ParentID: input.ParentID, Limit: input.Limit}
		if input.WorkstationID > 0 {
			ws := input.WorkstationID
			f.WorkstationID = &ws
		}
		items, err := e.ListOrders(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Order `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-order",
		Method:      http.MethodGet,
		Path:        "/orders/{order_id}",
		Summary:     "Get one order with its lines",
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body domain.Order `json:"body"`
	}, error) {
		o, err := e.GetOrder(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Order `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-order-schedule",
		Method:      http.MethodGet,
		Path:        "/orders/{order_id}/schedule",
		Summary:     "Get the stored schedule of a production order",
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
	}) (*struct {
		Body domain.Schedule `json:"body"`
	}, error) {
		s, err := e.GetSchedule(ctx, input.OrderID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Schedule `json:"body"`
		}{Body: s}, nil
	})
}

// createOrderRequest is shared by the order creation endpoints.
type createOrderRequest struct {
	Priority      string             `json:"priority,omitempty" enum:"LOW,NORMAL,HIGH,URGENT,"`
	WorkstationID int                `json:"workstation_id,omitempty" minimum:"0" maximum:"9"`
	Notes         string             `json:"notes,omitempty"`
	Lines         []engine.LineInput `json:"lines" minItems:"1"`
}

type orderResponse struct {
	Body domain.Order `json:"body"`
}

func registerOrderActions(api huma.API, e engine.Engine) {
	type createFn func(ctx context.Context, req createOrderRequest, actorID string) (domain.Order, error)
	registerCreate := func(family, route string, fn createFn) {
		huma.Register(api, huma.Operation{
			OperationID:   "create-" + family + "-order",
			Method:        http.MethodPost,
			Path:          "/orders/" + route,
			Summary:       "Create " + strings.ReplaceAll(family, "-", " ") + " order",
			DefaultStatus: http.StatusCreated,
		}, func(ctx context.Context, input *struct {
			Body createOrderRequest `json:"body"`
		}) (*orderResponse, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			o, err := fn(ctx, input.Body, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &orderResponse{Body: o}, nil
		})
	}

	type actionFn func(ctx context.Context, id, actorID string) (domain.Order, error)
	registerAction := func(family, route, action string, fn actionFn) {
		huma.Register(api, huma.Operation{
			OperationID: family + "-order-" + action,
			Method:      http.MethodPost,
			Path:        "/orders/" + route + "/{order_id}/" + action,
			Summary:     titleCase(action) + " " + strings.ReplaceAll(family, "-", " ") + " order",
		}, func(ctx context.Context, input *struct {
			OrderID string `path:"order_id"`
		}) (*orderResponse, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			o, err := fn(ctx, input.OrderID, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &orderResponse{Body: o}, nil
		})
	}

	registerCreate("customer", "customer", func(ctx context.Context, req createOrderRequest, actorID string) (domain.Order, error) {
		return e.CreateCustomerOrder(ctx, req.Priority, actorID, req.Notes, req.Lines)
	})
	registerAction("customer", "customer", "confirm", e.ConfirmCustomerOrder)
	registerAction("customer", "customer", "fulfill", e.FulfillCustomerOrder)
	registerAction("customer", "customer", "complete", e.CompleteCustomerOrder)
	registerAction("customer", "customer", "cancel", e.CancelCustomerOrder)

	registerCreate("warehouse", "warehouse", func(ctx context.Context, req createOrderRequest, actorID string) (domain.Order, error) {
		return e.CreateWarehouseOrder(ctx, req.Priority, actorID, req.Notes, req.Lines)
	})
	registerAction("warehouse", "warehouse", "confirm", e.ConfirmWarehouseOrder)
	registerAction("warehouse", "warehouse", "fulfill", e.FulfillWarehouseOrder)

	registerCreate("production", "production", func(ctx context.Context, req createOrderRequest, actorID string) (domain.Order, error) {
		return e.CreateProductionOrder(ctx, req.Priority, actorID, req.Notes, req.Lines)
	})
	registerAction("production", "production", "confirm", e.ConfirmProductionOrder)
	registerAction("production", "production", "schedule", e.ScheduleProductionOrder)
	registerAction("production", "production", "dispatch", e.DispatchProductionOrder)
	registerAction("production", "production", "cancel", e.CancelProductionOrder)

	registerCreate("production-control", "control", func(ctx context.Context, req createOrderRequest, actorID string) (domain.Order, error) {
		return e.CreateControlOrder(ctx, domain.OrderProductionControl, req.Priority, req.WorkstationID, actorID, req.Notes, req.Lines)
	})
	registerCreate("assembly-control", "assembly-control", func(ctx context.Context, req createOrderRequest, actorID string) (domain.Order, error) {
		return e.CreateControlOrder(ctx, domain.OrderAssemblyControl, req.Priority, req.WorkstationID, actorID, req.Notes, req.Lines)
	})
	registerAction("control", "control", "assign", e.AssignControlOrder)
	registerAction("control", "control", "start", e.StartControlOrder)
	registerAction("control", "control", "halt", e.HaltControlOrder)
	registerAction("control", "control", "resume", e.ResumeControlOrder)
	registerAction("control", "control", "abandon", e.AbandonControlOrder)
	registerAction("control", "control", "complete", e.CompleteControlOrder)

	huma.Register(api, huma.Operation{
		OperationID:   "control-order-request-supply",
		Method:        http.MethodPost,
		Path:          "/orders/control/{order_id}/supply",
		Summary:       "Request parts supply for a control order",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		OrderID string `path:"order_id"`
		Body    struct {
			Lines []engine.LineInput `json:"lines" minItems:"1"`
		} `json:"body"`
	}) (*orderResponse, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.RequestSupply(ctx, input.OrderID, actorID, input.Body.Lines)
		if err != nil {
			return nil, handleError(err)
		}
		return &orderResponse{Body: o}, nil
	})

	registerAction("workstation", "workstation", "start", e.StartWorkstationOrder)
	registerAction("workstation", "workstation", "halt", e.HaltWorkstationOrder)
	registerAction("workstation", "workstation", "resume", e.ResumeWorkstationOrder)
	registerAction("workstation", "workstation", "complete", e.CompleteWorkstationOrder)

	registerCreate("final-assembly", "assembly", func(ctx context.Context, req createOrderRequest, actorID string) (domain.Order, error) {
		return e.CreateFinalAssemblyOrder(ctx, req.Priority, actorID, req.Notes, req.Lines)
	})
	registerAction("final-assembly", "assembly", "confirm", e.ConfirmFinalAssemblyOrder)
	registerAction("final-assembly", "assembly", "start", e.StartFinalAssemblyOrder)
	registerAction("final-assembly", "assembly", "complete", e.CompleteFinalAssemblyOrder)
	registerAction("final-assembly", "assembly", "submit", e.SubmitFinalAssemblyOrder)

	registerCreate("supply", "supply", func(ctx context.Context, req createOrderRequest, actorID string) (domain.Order, error) {
		return e.CreateSupplyOrder(ctx, req.Priority, req.WorkstationID, actorID, req.Notes, req.Lines)
	})
	registerAction("supply", "supply", "approve", e.ApproveSupplyOrder)
	registerAction("supply", "supply", "reject", e.RejectSupplyOrder)
	registerAction("supply", "supply", "fulfill", e.FulfillSupplyOrder)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List lifecycle events, most recent first",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" minimum:"0" maximum:"1000"`
		Cursor     int64  `query:"cursor" minimum:"0"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		PlantID    string `query:"plant_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		var items []domain.Event
		var err error
		if input.Cursor > 0 {
			items, err = e.Repo.LatestEventsFrom(ctx, limit, input.Cursor, input.PlantID, input.Type, input.EntityKind, input.EntityID)
		} else {
			items, err = e.Repo.LatestEvents(ctx, limit, input.PlantID, input.Type, input.EntityKind, input.EntityID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
