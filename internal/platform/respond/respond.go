// Package respond renders RFC 9457 problem details for requests the routes
// do not answer: unknown paths, disallowed methods, and recovered panics.
package respond

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/negotiation"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	applog "github.com/janisto/ci-pipeline-demo/internal/platform/logging"
)

const (
	contentTypeProblemJSON = "application/problem+json"
	contentTypeProblemCBOR = "application/problem+cbor"

	msgNotFound       = "resource not found"
	msgInternalServer = "internal server error"
)

// problemFormats lists the media types a client may ask for, in server preference order.
var problemFormats = []string{
	"application/json",
	contentTypeProblemJSON,
	"application/cbor",
	contentTypeProblemCBOR,
}

// candidateMethods are probed against the route tree to build the Allow header.
var candidateMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// NotFoundHandler emits a 404 problem response.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteProblem(w, r, http.StatusNotFound, msgNotFound)
	}
}

// MethodNotAllowedHandler emits a 405 problem response with an Allow header
// listing the methods the matched path does accept.
func MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if allow := allowedMethods(r); len(allow) > 0 {
			w.Header().Set("Allow", strings.Join(allow, ", "))
		}
		WriteProblem(w, r, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
	}
}

// Recoverer converts panics into 500 problem responses. http.ErrAbortHandler
// is re-panicked so net/http can abort the connection, and a response that
// has already started is left as is.
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				if errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				stack := zap.ByteString("stack", debug.Stack())
				if rw.wroteHeader {
					applog.LogError(r.Context(), "panic after response started", err, stack)
					return
				}
				WriteProblem(rw, r, http.StatusInternalServerError, msgInternalServer, err)
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

// WriteProblem logs and writes a problem document for status. The body is
// CBOR when the Accept header prefers it and JSON otherwise.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string, errs ...error) {
	ctx := r.Context()
	logProblem(ctx, status, detail, r, errors.Join(errs...))

	problem := &huma.ErrorModel{
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}

	contentType, body, err := encodeProblem(r.Header.Get("Accept"), problem)
	if err != nil {
		applog.LogError(ctx, "failed to encode problem", err, zap.Int("status", status))
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		applog.LogWarn(ctx, "failed to write problem", zap.Error(err), zap.Int("status", status))
	}
}

func encodeProblem(accept string, problem *huma.ErrorModel) (string, []byte, error) {
	if acceptsCBOR(accept) {
		body, err := cbor.Marshal(problem)
		return contentTypeProblemCBOR, body, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(problem); err != nil {
		return "", nil, err
	}
	return contentTypeProblemJSON, buf.Bytes(), nil
}

// acceptsCBOR reports whether a CBOR media type is the client's best match.
// Wildcards and unknown types fall back to JSON.
func acceptsCBOR(accept string) bool {
	if accept == "" {
		return false
	}
	switch negotiation.SelectQValueFast(accept, problemFormats) {
	case "application/cbor", contentTypeProblemCBOR:
		return true
	default:
		return false
	}
}

func logProblem(ctx context.Context, status int, detail string, r *http.Request, err error) {
	fields := []zap.Field{
		zap.Int("status", status),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	}
	if status >= http.StatusInternalServerError {
		applog.LogError(ctx, detail, err, fields...)
		return
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	applog.LogWarn(ctx, detail, fields...)
}

// allowedMethods inspects chi's routing tree for methods registered on the request path.
// HEAD is implied by GET because the router serves HEAD through GET handlers.
func allowedMethods(r *http.Request) []string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.Routes == nil {
		return nil
	}

	routePath := rctx.RoutePath
	if routePath == "" {
		if r.URL.RawPath != "" {
			routePath = r.URL.RawPath
		} else {
			routePath = r.URL.Path
		}
		if routePath == "" {
			routePath = "/"
		}
	}

	matched := make(map[string]bool, len(candidateMethods))
	for _, method := range candidateMethods {
		if rctx.Routes.Match(chi.NewRouteContext(), method, routePath) {
			matched[method] = true
		}
	}
	if matched[http.MethodGet] {
		matched[http.MethodHead] = true
	}

	allowed := make([]string, 0, len(matched))
	for _, method := range candidateMethods {
		if matched[method] {
			allowed = append(allowed, method)
		}
	}
	return allowed
}

// responseWriter records whether the handler has started the response.
type responseWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
