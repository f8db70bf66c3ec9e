package models

// URLSearchRequest asks for matches for an image hosted elsewhere.
type URLSearchRequest struct {
	URL string `json:"url" binding:"required"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Time          string  `json:"time"`
	Goroutines    int     `json:"goroutines"`
	MemoryUsedPct float64 `json:"memory_used_percent,omitempty"`
}
