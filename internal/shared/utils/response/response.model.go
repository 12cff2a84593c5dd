package response

type StandardApiResponse struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Errors     interface{} `json:"errors,omitempty"`
}

// ErrorDetail classifies a failed request so clients need not parse messages
type ErrorDetail struct {
	Kind string `json:"kind"`
}
