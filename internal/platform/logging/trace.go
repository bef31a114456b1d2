package logging

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	traceparentHeader = "traceparent"
	amznTraceHeader   = "X-Amzn-Trace-Id"
)

// W3C Trace Context format: {version}-{trace-id}-{parent-id}-{trace-flags}
// Example: 00-ab42124a3c573678d4d8b21ba52df3bf-d21f7bc17caa5aba-01
var traceparentRe = regexp.MustCompile(`^([0-9a-f]{2})-([0-9a-f]{32})-([0-9a-f]{16})-([0-9a-f]{2})$`)

// X-Ray root IDs look like 1-5759e988-bd862e3fe1be46a994272793.
var amznRootRe = regexp.MustCompile(`^1-[0-9a-f]{8}-[0-9a-f]{24}$`)

// traceContext is the correlation data extracted from an inbound request.
type traceContext struct {
	TraceID string
	SpanID  string
	Sampled bool
	// hasSampled is false when the header carried no sampling decision.
	hasSampled bool
}

// traceFromRequest prefers W3C traceparent and falls back to the AWS X-Ray header
// set by load balancers in front of the service.
func traceFromRequest(r *http.Request) (traceContext, bool) {
	if tc, ok := parseTraceparent(r.Header.Get(traceparentHeader)); ok {
		return tc, true
	}
	return parseAmznTrace(r.Header.Get(amznTraceHeader))
}

func parseTraceparent(header string) (traceContext, bool) {
	m := traceparentRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(header)))
	if len(m) != 5 {
		return traceContext{}, false
	}
	// Version ff and all-zero IDs are invalid.
	if m[1] == "ff" || strings.Trim(m[2], "0") == "" || strings.Trim(m[3], "0") == "" {
		return traceContext{}, false
	}
	flags, err := strconv.ParseUint(m[4], 16, 8)
	if err != nil {
		return traceContext{}, false
	}
	return traceContext{
		TraceID:    m[2],
		SpanID:     m[3],
		Sampled:    flags&0x01 == 0x01,
		hasSampled: true,
	}, true
}

// parseAmznTrace reads "Root=...;Parent=...;Sampled=..." in any order.
func parseAmznTrace(header string) (traceContext, bool) {
	var tc traceContext
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "Root":
			tc.TraceID = value
		case "Parent":
			tc.SpanID = value
		case "Sampled":
			if value == "0" || value == "1" {
				tc.Sampled = value == "1"
				tc.hasSampled = true
			}
		}
	}
	if !amznRootRe.MatchString(tc.TraceID) {
		return traceContext{}, false
	}
	return tc, true
}

func (tc traceContext) fields() []zap.Field {
	fields := []zap.Field{zap.String("traceId", tc.TraceID)}
	if tc.SpanID != "" {
		fields = append(fields, zap.String("spanId", tc.SpanID))
	}
	if tc.hasSampled {
		fields = append(fields, zap.Bool("traceSampled", tc.Sampled))
	}
	return fields
}

func loggerWithTrace(base *zap.Logger, r *http.Request, requestID string) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	var fields []zap.Field
	if tc, ok := traceFromRequest(r); ok {
		fields = tc.fields()
	}
	if requestID != "" {
		fields = append(fields, zap.String("requestId", requestID))
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
