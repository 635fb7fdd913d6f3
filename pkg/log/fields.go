package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Coordination core
	FieldConnectionID = "connection_id"
	FieldClientClass  = "client_class"
	FieldRoomToken    = "room_token"
	FieldRole         = "role"
	FieldTarget       = "target"
	FieldDelivered    = "delivered"

	// Service
	FieldService = "service"
)
