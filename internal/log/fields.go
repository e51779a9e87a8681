package log

import (
	"sort"

	"expensetracker/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldLocalID     = "local_id"
	FieldRemoteID    = "remote_id"
	FieldAmountCents = "amount_cents"
	FieldCategory    = "category"
	FieldResult      = "result"
	FieldMessage     = "message"
	FieldCount       = "count"
	FieldBackend     = "backend"
	FieldFilter      = "filter"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentReconciler = "reconciler"
	ComponentBrowser    = "browser"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentRemote     = "remote"
	ComponentMockAPI    = "mockapi"
	ComponentAudit      = "audit"
	ComponentBackend    = "backend"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpRefresh  = "refresh"
	OpList     = "list"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithExpense adds the identifying fields of a record. Descriptions stay out of logs.
func (f LogFields) WithExpense(e core.Expense) LogFields {
	if e.LocalID != 0 {
		f[FieldLocalID] = e.LocalID
	}
	if e.RemoteID != "" {
		f[FieldRemoteID] = e.RemoteID
	}
	f[FieldAmountCents] = e.Amount.Cents
	f[FieldCategory] = e.Category
	return f
}

// WithResult adds the kind and message of an operation result.
func (f LogFields) WithResult(r core.Result) LogFields {
	f[FieldResult] = string(r.Kind)
	if r.Message != "" {
		f[FieldMessage] = r.Message
	}
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if query != "" {
		f[FieldQuery] = query
	}
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to key/value pairs for slog, sorted by key.
func (f LogFields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	slice := make([]any, 0, len(f)*2)
	for _, k := range keys {
		slice = append(slice, k, f[k])
	}
	return slice
}
