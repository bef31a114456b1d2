package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/janisto/ci-pipeline-demo/internal/http/health"
	"github.com/janisto/ci-pipeline-demo/internal/http/home"
)

// Register wires all HTTP routes into the provided API router.
func Register(api huma.API) {
	home.Register(api)
	health.Register(api)
}
