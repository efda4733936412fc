package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldErrorCode  = "error_code"
	FieldOperation  = "operation"

	FieldRecordType = "record_type"
	FieldCategory   = "category"
	FieldCurrency   = "currency"
	FieldPeriod     = "period"
	FieldRows       = "rows"
	FieldOffset     = "offset"
	FieldLimit      = "limit"

	FieldDBPath     = "db_path"
	FieldBlobName   = "blob_name"
	FieldBlobID     = "blob_id"
	FieldBlobSize   = "blob_size"
	FieldReason     = "reason"
	FieldSink       = "sink"
	FieldRunTime    = "run_time"
	FieldNextRun    = "next_run"
	FieldLastRun    = "last_run"
	FieldState      = "state"
	FieldEventType  = "event_type"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentStorage   = "storage"
	ComponentQuery     = "query"
	ComponentStats     = "stats"
	ComponentRecords   = "records"
	ComponentBackup    = "backup"
	ComponentScheduler = "scheduler"
	ComponentSink      = "sink"
	ComponentSettings  = "settings"
	ComponentEvents    = "events"
)

// Operations defines standard operation names
const (
	OpBackup  = "backup"
	OpRestore = "restore"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
