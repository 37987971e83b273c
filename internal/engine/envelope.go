package engine

import (
	"trendfinder/internal/contract"
	"trendfinder/internal/store"
)

// Envelope is the fixed top-level success shape: pagination/context
// metadata in meta, the row page in data.
type Envelope struct {
	Meta Meta        `json:"meta"`
	Data []store.Row `json:"data"`
}

type Meta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
	Sort       Sort  `json:"sort"`
	// Filters echoes the normalized input as received, not the typed
	// values, so clients can see exactly what was honored.
	Filters       map[string]string `json:"filters"`
	CorrelationID string            `json:"correlation_id"`
	Debug         *Debug            `json:"debug"`
}

type Sort struct {
	By  string `json:"by"`
	Dir string `json:"dir"`
}

// Debug is the opt-in diagnostics block, present only when a valid debug
// key was supplied.
type Debug struct {
	WhereSQL      string      `json:"where_sql"`
	OrderSQL      string      `json:"order_sql"`
	ParamsPreview []string    `json:"params_preview"`
	Limits        Limits      `json:"limits"`
	Runtime       RuntimeInfo `json:"runtime"`
	Validation    string      `json:"validation"`
}

type Limits struct {
	PageSize int `json:"page_size"`
	HardCap  int `json:"hard_cap"`
}

// RuntimeInfo passes through hosting-environment identity strings.
type RuntimeInfo struct {
	Function  string `json:"function"`
	MemoryMB  string `json:"memory_mb"`
	LogStream string `json:"log_stream"`
}

// ErrorBody is the shared 400/500 shape.
type ErrorBody struct {
	Error         string               `json:"error"`
	Message       string               `json:"message"`
	Details       []contract.Violation `json:"details,omitempty"`
	CorrelationID string               `json:"correlation_id"`
}
