package mcp

import (
	"encoding/json"
	"time"
)

// ToolResponse is the JSON body of every tool result
type ToolResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Data    interface{}   `json:"data,omitempty"`
	Error   string        `json:"error,omitempty"`
	Meta    *ResponseMeta `json:"meta,omitempty"`
}

// ResponseMeta contains metadata about the response
type ResponseMeta struct {
	Count   int    `json:"count,omitempty"`
	Current string `json:"current,omitempty"`
	Head    string `json:"head,omitempty"`
}

// NewSuccessResponse creates a successful tool response
func NewSuccessResponse(message string, data interface{}) *ToolResponse {
	return &ToolResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

// NewErrorResponse creates an error tool response
func NewErrorResponse(error string) *ToolResponse {
	return &ToolResponse{
		Success: false,
		Error:   error,
	}
}

// ToJSON converts the response to JSON
func (r *ToolResponse) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// TargetRequest is the argument of upgrade and downgrade
type TargetRequest struct {
	Target string `json:"target"`
	SQL    bool   `json:"sql,omitempty"`
}

// PlanRequest is the argument of plan_migration
type PlanRequest struct {
	Direction string `json:"direction"`
	Target    string `json:"target,omitempty"`
}

// HistoryRequest is the argument of migration_history
type HistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

// RevisionSummary describes one revision in list_revisions
type RevisionSummary struct {
	ID           string    `json:"id"`
	DownRevision string    `json:"down_revision"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
	Applied      bool      `json:"applied"`
	Current      bool      `json:"current"`
}

// FailureDetail is attached to a failed upgrade or downgrade so the caller
// knows where the database was left
type FailureDetail struct {
	Revision  string   `json:"revision"`
	Direction string   `json:"direction"`
	Current   string   `json:"current"`
	Applied   []string `json:"applied"`
	SQLState  string   `json:"sqlstate,omitempty"`
}
