// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"log/slog"
	"time"
)

// OperationRequest represents an operations-facade call for logging purposes.
type OperationRequest struct {
	// OperationName is the operations-facade function invoked (e.g. "submit_run", "replay_dead_letter").
	OperationName string

	// CorrelationID is the correlation ID for tracing the request.
	CorrelationID string

	// RequestID is the unique ID for this specific request.
	RequestID string

	// RemoteAddr is the remote address of the client.
	RemoteAddr string

	// Metadata contains additional request metadata.
	Metadata map[string]interface{}
}

// OperationResponse represents an operations-facade result for logging purposes.
type OperationResponse struct {
	// Success indicates whether the request was successful.
	Success bool

	// Error is the error message if the request failed.
	Error string

	// DurationMs is the duration of the request in milliseconds.
	DurationMs int64

	// Metadata contains additional response metadata.
	Metadata map[string]interface{}
}

// LogOperationRequest logs an incoming operations-facade call.
func LogOperationRequest(logger *slog.Logger, req *OperationRequest) {
	attrs := []any{
		"event", "operation_request",
		"operation", req.OperationName,
		"remote", req.RemoteAddr,
	}

	if req.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", req.CorrelationID)
	}

	if req.RequestID != "" {
		attrs = append(attrs, "request_id", req.RequestID)
	}

	for k, v := range req.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Info("operation request received", attrs...)
}

// LogOperationResponse logs an operations-facade result.
func LogOperationResponse(logger *slog.Logger, req *OperationRequest, resp *OperationResponse) {
	attrs := []any{
		"event", "operation_response",
		"operation", req.OperationName,
		"success", resp.Success,
		"duration_ms", resp.DurationMs,
		"remote", req.RemoteAddr,
	}

	if req.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", req.CorrelationID)
	}

	if req.RequestID != "" {
		attrs = append(attrs, "request_id", req.RequestID)
	}

	if resp.Error != "" {
		attrs = append(attrs, "error", resp.Error)
	}

	for k, v := range resp.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	message := "operation request completed"

	if !resp.Success {
		level = slog.LevelError
		message = "operation request failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// OperationMiddleware wraps an operations-facade function with logging.
// It logs the request when it arrives and the response when it completes.
type OperationMiddleware struct {
	logger *slog.Logger
}

// NewOperationMiddleware creates a new operations-facade logging middleware.
func NewOperationMiddleware(logger *slog.Logger) *OperationMiddleware {
	return &OperationMiddleware{
		logger: logger,
	}
}

// Handler wraps a function that processes an operations-facade call.
// It logs the request and response automatically.
func (m *OperationMiddleware) Handler(req *OperationRequest, handler func() error) error {
	start := time.Now()

	// Log incoming request
	LogOperationRequest(m.logger, req)

	// Execute handler
	err := handler()

	// Calculate duration
	duration := time.Since(start).Milliseconds()

	// Log response
	resp := &OperationResponse{
		Success:    err == nil,
		DurationMs: duration,
	}

	if err != nil {
		resp.Error = err.Error()
	}

	LogOperationResponse(m.logger, req, resp)

	return err
}

// HandlerWithMetadata wraps a function that processes an operations-facade call and returns metadata.
// It logs the request and response with the returned metadata.
func (m *OperationMiddleware) HandlerWithMetadata(req *OperationRequest, handler func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	start := time.Now()

	// Log incoming request
	LogOperationRequest(m.logger, req)

	// Execute handler
	metadata, err := handler()

	// Calculate duration
	duration := time.Since(start).Milliseconds()

	// Log response
	resp := &OperationResponse{
		Success:    err == nil,
		DurationMs: duration,
		Metadata:   metadata,
	}

	if err != nil {
		resp.Error = err.Error()
	}

	LogOperationResponse(m.logger, req, resp)

	return metadata, err
}
