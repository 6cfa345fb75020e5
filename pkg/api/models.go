package api

// addServerRequest is the POST /servers body.
type addServerRequest struct {
	ID       string            `json:"id,omitempty"`
	Host     string            `json:"host"`
	Port     int               `json:"port"`
	Weight   int               `json:"weight,omitempty"`
	MaxConns int               `json:"max_conns,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// selectRequest is the POST /select body. Strategy overrides the configured
// algorithm for this selection only.
type selectRequest struct {
	Strategy    string `json:"strategy,omitempty"`
	AffinityKey string `json:"affinity_key,omitempty"`
}

// reportRequest is the POST /report body.
type reportRequest struct {
	ServerID  string  `json:"server_id"`
	LatencyMs float64 `json:"latency_ms"`
	Success   bool    `json:"success"`
}

// strategyRequest is the PUT /strategy body.
type strategyRequest struct {
	Strategy string `json:"strategy"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}
