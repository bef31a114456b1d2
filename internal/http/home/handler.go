package home

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	applog "github.com/janisto/ci-pipeline-demo/internal/platform/logging"
)

const (
	// Greeting is the landing page fragment served at the root path.
	Greeting = "<h1>Hello from CI/CD Demo App!</h1><p>This Flask app is ready for AWS CI/CD pipeline.</p>"

	ContentType = "text/html; charset=utf-8"
)

var greetingBody = []byte(Greeting)

// Output carries the greeting as a raw body so huma writes it untouched.
type Output struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// Register wires the root greeting route into the provided API router.
func Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-home",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Greeting page",
		Tags:        []string{"Home"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Static HTML greeting",
				Content: map[string]*huma.MediaType{
					"text/html": {
						Schema: &huma.Schema{Type: huma.TypeString, Examples: []any{Greeting}},
					},
				},
			},
		},
	}, getHandler)
}

func getHandler(ctx context.Context, _ *struct{}) (*Output, error) {
	applog.LogDebug(ctx, "home get", zap.String("path", "/"))
	return &Output{ContentType: ContentType, Body: greetingBody}, nil
}
