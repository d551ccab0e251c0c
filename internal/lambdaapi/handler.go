// Package lambdaapi exposes the Telegram webhook as an API Gateway proxy
// Lambda handler.
package lambdaapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/ent0n29/docvoice/internal/telegram"
)

// Receiver is satisfied by *telegram.Webhook.
type Receiver interface {
	Receive(ctx context.Context, secretToken string, body []byte) error
}

type Handler struct {
	receiver Receiver
	logger   *slog.Logger
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func NewHandler(receiver Receiver, logger *slog.Logger) (*Handler, error) {
	if receiver == nil {
		return nil, errors.New("lambdaapi: receiver must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{receiver: receiver, logger: logger}, nil
}

// Handle mirrors POST /webhook: 200 for every authenticated delivery, 401 on
// a bad secret token, 405 for anything but POST.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := uuid.NewString()
	logger := h.logger.With("correlation_id", correlationID, "request_id", req.RequestContext.RequestID)

	if req.HTTPMethod != "" && !strings.EqualFold(req.HTTPMethod, http.MethodPost) {
		return respond(http.StatusMethodNotAllowed, correlationID, errorResponse{Error: "method not allowed", Code: "method_not_allowed"}), nil
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			logger.Warn("webhook body not valid base64", "err", err)
			return respond(http.StatusOK, correlationID, statusResponse{Status: "ok"}), nil
		}
		body = decoded
	}

	if err := h.receiver.Receive(ctx, header(req, telegram.SecretTokenHeader), body); err != nil {
		return respond(http.StatusUnauthorized, correlationID, errorResponse{Error: err.Error(), Code: "unauthorized"}), nil
	}
	return respond(http.StatusOK, correlationID, statusResponse{Status: "ok"}), nil
}

// header looks a header up case-insensitively; API Gateway preserves the
// client's casing.
func header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	for k, vs := range req.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

func respond(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		body = []byte(`{"error":"internal error","code":"internal"}`)
		status = http.StatusInternalServerError
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Correlation-Id": correlationID,
		},
		Body: string(body),
	}
}
