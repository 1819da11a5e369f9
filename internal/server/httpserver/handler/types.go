package handler

import "time"

// CodeOK is the envelope code of every successful response.
const CodeOK = "OK"

// Response wraps every JSON body the API returns. Prometheus text on
// /metrics is the only exception.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"` // unix millis
	Data      any    `json:"data,omitempty"`
}

// NewResponse wraps data in a success envelope.
func NewResponse(requestID string, data any) *Response {
	return stamped(Response{Code: CodeOK, Message: "Success", RequestID: requestID, Data: data})
}

// NewErrorResponse builds an envelope for a failed request.
func NewErrorResponse(requestID, code, message string) *Response {
	return stamped(Response{Code: code, Message: message, RequestID: requestID})
}

func stamped(r Response) *Response {
	r.Timestamp = time.Now().UnixMilli()
	return &r
}

// PublishResponse is the response body for POST /rooms/{room}/messages.
type PublishResponse struct {
	Room      string `json:"room"`
	Receivers int64  `json:"receivers"`
}

// RoomResponse is the response body for GET /rooms/{room}.
type RoomResponse struct {
	Room        string `json:"room"`
	Connections int64  `json:"connections"`
}

// HealthResponse is the response body for GET /health and GET /ready.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"` // RFC 3339, UTC
}
