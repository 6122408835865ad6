// Package mailtools defines the email tool set exposed over MCP. Every tool
// is a thin translation onto the backend client, with the shared cache
// absorbing repeated reads of slow-moving backend data.
package mailtools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/mailwebhook/mcp-gateway-go/cache"
	"github.com/mailwebhook/mcp-gateway-go/mailapi"
	"github.com/mailwebhook/mcp-gateway-go/tools"
)

// Cache TTLs per data class. Templates move slowly; delivery status is
// volatile; backend health sits in between.
const (
	templatesTTL = 5 * time.Minute
	statusTTL    = 30 * time.Second
	healthTTL    = 15 * time.Second
)

// TemplateSource abstracts where email templates come from: the backend's
// /templates endpoints in production, or a local directory in dev mode.
type TemplateSource interface {
	List(ctx context.Context) (json.RawMessage, error)
	Get(ctx context.Context, name string) (json.RawMessage, error)
}

// backendTemplates serves templates from the backend REST API.
type backendTemplates struct {
	client *mailapi.Client
}

func (b backendTemplates) List(ctx context.Context) (json.RawMessage, error) {
	return b.client.ListTemplates(ctx)
}

func (b backendTemplates) Get(ctx context.Context, name string) (json.RawMessage, error) {
	return b.client.GetTemplate(ctx, name)
}

// Deps carries the collaborators the tool set needs.
type Deps struct {
	Backend   *mailapi.Client
	Cache     *cache.Manager
	Templates TemplateSource // nil = backend-served templates
	Log       *slog.Logger
}

type sendEmailArgs struct {
	To       string `json:"to" jsonschema:"description=Recipient email address"`
	Subject  string `json:"subject" jsonschema:"description=Email subject line"`
	Body     string `json:"body" jsonschema:"description=Plain-text email body"`
	Async    bool   `json:"async,omitempty" jsonschema:"description=Queue for asynchronous delivery instead of sending inline"`
	Priority string `json:"priority,omitempty" jsonschema:"enum=low,enum=normal,enum=high,description=Delivery priority"`
}

type templateArgs struct {
	Name string `json:"name" jsonschema:"description=Template name"`
}

type statusArgs struct {
	ID string `json:"id" jsonschema:"description=Delivery status id returned by send_email"`
}

type batchStatusArgs struct {
	IDs []string `json:"ids" jsonschema:"description=Delivery status ids to look up"`
}

type emptyArgs struct{}

// All builds the complete email tool set.
func All(deps Deps) []tools.Tool {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	templates := deps.Templates
	if templates == nil {
		templates = backendTemplates{client: deps.Backend}
	}

	return []tools.Tool{
		tools.New("send_email", func(ctx context.Context, args sendEmailArgs) (*tools.Result, error) {
			req := mailapi.SendRequest{
				To:       args.To,
				Subject:  args.Subject,
				Body:     args.Body,
				Priority: args.Priority,
			}
			var (
				data json.RawMessage
				err  error
			)
			if args.Async {
				data, err = deps.Backend.SendAsync(ctx, req)
			} else {
				data, err = deps.Backend.Send(ctx, req)
			}
			if err != nil {
				return backendFailure("send failed", err), nil
			}
			if args.Async {
				return tools.OkMessage(data, "email queued for delivery"), nil
			}
			return tools.OkMessage(data, "email sent"), nil
		}, tools.WithDescription("Send an email through the delivery backend. Set async to queue instead of sending inline.")),

		tools.New("list_email_templates", func(ctx context.Context, _ emptyArgs) (*tools.Result, error) {
			payload, err := deps.Cache.GetOrSet(ctx, "templates:all", templatesTTL, func(ctx context.Context) (any, error) {
				return templates.List(ctx)
			})
			if err != nil {
				return backendFailure("template listing failed", err), nil
			}
			return tools.Ok(payload), nil
		}, tools.WithDescription("List the email templates available on the delivery backend.")),

		tools.New("get_email_template", func(ctx context.Context, args templateArgs) (*tools.Result, error) {
			payload, err := deps.Cache.GetOrSet(ctx, "templates:"+args.Name, templatesTTL, func(ctx context.Context) (any, error) {
				return templates.Get(ctx, args.Name)
			})
			if err != nil {
				return backendFailure("template lookup failed", err), nil
			}
			return tools.Ok(payload), nil
		}, tools.WithDescription("Fetch a single email template by name.")),

		tools.New("get_email_status", func(ctx context.Context, args statusArgs) (*tools.Result, error) {
			payload, err := deps.Cache.GetOrSet(ctx, "status:"+args.ID, statusTTL, func(ctx context.Context) (any, error) {
				return deps.Backend.GetStatus(ctx, args.ID)
			})
			if err != nil {
				return backendFailure("status lookup failed", err), nil
			}
			return tools.Ok(payload), nil
		}, tools.WithDescription("Look up the delivery status of a previously sent email.")),

		tools.New("batch_email_status", func(ctx context.Context, args batchStatusArgs) (*tools.Result, error) {
			if len(args.IDs) == 0 {
				return tools.Errf("ids must not be empty"), nil
			}
			data, err := deps.Backend.BatchStatus(ctx, args.IDs)
			if err != nil {
				return backendFailure("batch status lookup failed", err), nil
			}
			return tools.Ok(data), nil
		}, tools.WithDescription("Look up delivery statuses for several emails at once.")),

		tools.New("check_email_service_health", func(ctx context.Context, _ emptyArgs) (*tools.Result, error) {
			payload, err := deps.Cache.GetOrSet(ctx, "backend:health", healthTTL, func(ctx context.Context) (any, error) {
				return deps.Backend.Health(ctx)
			})
			if err != nil {
				return backendFailure("backend health check failed", err), nil
			}
			return tools.Ok(payload), nil
		}, tools.WithDescription("Probe the delivery backend's health endpoint.")),
	}
}

// backendFailure maps a backend error to a failed tool result, preserving
// the backend's own message when one exists.
func backendFailure(prefix string, err error) *tools.Result {
	var apiErr *mailapi.APIError
	if errors.As(err, &apiErr) && apiErr.ErrText != "" {
		return tools.Errf("%s: %s", prefix, apiErr.ErrText)
	}
	return tools.Errf("%s: %v", prefix, err)
}
