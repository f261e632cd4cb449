package model

// ErrorResponse is the envelope every failed staff-API call returns.
type ErrorResponse struct {
	Error string `json:"error"`
	Data  any    `json:"data,omitempty"`
}
