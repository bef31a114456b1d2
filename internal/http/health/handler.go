package health

import (
	"context"
	"net/http"
	"reflect"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	applog "github.com/janisto/ci-pipeline-demo/internal/platform/logging"
)

const (
	StatusHealthy  = "healthy"
	MessageRunning = "Application is running"

	ContentType = "application/json"
)

// body is the exact wire form of Response{StatusHealthy, MessageRunning}.
var body = []byte(`{"status": "healthy", "message": "Application is running"}`)

// Response is the payload for the health endpoint.
type Response struct {
	Status  string `json:"status"  doc:"Liveness state"       example:"healthy"`
	Message string `json:"message" doc:"Human readable status" example:"Application is running"`
}

// Output carries the pre-rendered health document as a raw body.
type Output struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// Register wires the health check route into the provided API router.
func Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"Health"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Service is healthy",
				Content: map[string]*huma.MediaType{
					ContentType: {
						Schema: api.OpenAPI().Components.Schemas.Schema(reflect.TypeFor[Response](), true, "HealthResponse"),
					},
				},
			},
		},
	}, getHandler)
}

func getHandler(ctx context.Context, _ *struct{}) (*Output, error) {
	applog.LogDebug(ctx, "health get", zap.String("path", "/health"))
	return &Output{ContentType: ContentType, Body: body}, nil
}
