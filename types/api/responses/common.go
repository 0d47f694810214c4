package responses

// ErrorResponse represents a standard error response. The correlation ID
// ties the body back to the request's log lines.
type ErrorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// ListResponse wraps a homogeneous list payload.
type ListResponse struct {
	Object string      `json:"object"`
	Data   interface{} `json:"data"`
}
