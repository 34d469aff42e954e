// Package runtime adapts the approval handler to its two execution surfaces:
// a standalone HTTP server and AWS Lambda proxy integrations.
package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/isometry/gh-approval-gate/internal/handler"
	"github.com/isometry/gh-approval-gate/internal/helpers"
	"github.com/isometry/gh-approval-gate/internal/models"
)

// Option is a functional option used to configure a Runtime instance.
type Option func(*Runtime)

// WithLogger sets the logger instance for the runtime.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// Runtime wraps a handler with transport adapters.
type Runtime struct {
	*handler.Handler
	logger *slog.Logger
}

// NewRuntime creates a new runtime instance.
func NewRuntime(handler *handler.Handler, opts ...Option) *Runtime {
	_inst := &Runtime{Handler: handler}
	for _, opt := range opts {
		opt(_inst)
	}
	if _inst.logger == nil {
		_inst.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return _inst
}

// Lambda is the handler for HTTP-shaped Lambda triggers. All supported proxy
// payload shapes carry body and headers at the top level, so a single request
// model covers them.
func (r *Runtime) Lambda(ctx context.Context, req models.Request) (response any, err error) {
	r.logger.Info("received Lambda request")

	// Proxy integrations do not guarantee header key casing.
	lch := make(map[string]string)
	for k, v := range req.Headers {
		lch[strings.ToLower(k)] = v
	}

	result, err := r.Handler.Process(ctx, []byte(req.Body), lch)

	payloadType := r.Handler.GetLambdaPayloadType()
	switch payloadType {
	case "api-gateway-v1":
		return events.APIGatewayProxyResponse{
			Body:       result.Body,
			StatusCode: result.StatusCode,
			Headers:    result.Headers,
		}, err
	case "api-gateway-v2":
		return events.APIGatewayV2HTTPResponse{
			Body:       result.Body,
			StatusCode: result.StatusCode,
			Headers:    result.Headers,
		}, err
	case "lambda-url":
		return events.LambdaFunctionURLResponse{
			Body:       result.Body,
			StatusCode: result.StatusCode,
			Headers:    result.Headers,
		}, err
	default:
		return nil, fmt.Errorf("unsupported lambda payload type: %s", payloadType)
	}
}

// LambdaForEvent is the handler for direct Lambda invocations carrying the
// raw request model rather than a proxy envelope.
func (r *Runtime) LambdaForEvent(ctx context.Context, req models.Request) (models.Response, error) {
	r.logger.Info("received Lambda event")

	lch := make(map[string]string)
	for k, v := range req.Headers {
		lch[strings.ToLower(k)] = v
	}
	return r.Handler.Process(ctx, []byte(req.Body), lch)
}

// ServeHTTP is the HTTP handler for the runtime.
func (r *Runtime) ServeHTTP(resp http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		break
	default:
		r.logger.Debug("rejecting HTTP request...", slog.Any("requestor", req.RemoteAddr), "reason", "method not allowed", slog.Any("method", req.Method))
		helpers.RespondHTTP(models.Response{StatusCode: http.StatusMethodNotAllowed}, nil, resp)
		return
	}

	r.logger.Debug("received HTTP request...", slog.Any("requestor", req.RemoteAddr), slog.Any("method", req.Method), slog.Any("path", req.URL.Path))
	headers := make(map[string]string)
	for k, v := range req.Header {
		headers[strings.ToLower(k)] = v[0]
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		r.logger.Error("failed to read request body", slog.Any("error", err))
		helpers.RespondHTTP(models.Response{StatusCode: http.StatusInternalServerError}, err, resp)
		return
	}
	result, err := r.Handler.Process(req.Context(), body, headers)
	helpers.RespondHTTP(result, err, resp)
}
