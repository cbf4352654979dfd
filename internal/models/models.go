package models

// ClassifyResponse is the success body of POST /api/classify
type ClassifyResponse struct {
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
}

// ErrorResponse is the body returned with any non-2xx status
type ErrorResponse struct {
	Error string `json:"error"`
}
