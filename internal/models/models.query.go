// FilePath: server/weatherhub/internal/models/models.query.go
package models

// DiagnosticsFilter selects recent packets for the debug view.
type DiagnosticsFilter struct {
	OnlyErrors bool `json:"only_errors" schema:"only_errors"`
	Limit      int  `json:"limit" schema:"limit"`
}

// QueryRequest is the body of an ad-hoc query.
type QueryRequest struct {
	SQL string `json:"sql"`
}

// QueryResult is the output of a sandboxed read query. Rows are keyed
// by column name; Columns preserves the column order.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
	ElapsedMS int64            `json:"elapsed_ms"`
}
