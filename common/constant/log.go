package constant

const (
	LogFieldErr      = "error"
	LogFieldTraceId  = "trace_id"
	LogFieldPayload  = "payload"
	LogFieldResponse = "response"
	LogFieldOrder    = "order_number"
	LogFieldCard     = "card_id"
)
