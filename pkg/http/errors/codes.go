package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeForbidden              = "forbidden"
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeAuthenticationRequired = "authentication_required"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"

	// Room errors
	ErrCodeRoomNotFound        = "room_not_found"
	ErrCodeInvalidRoomID       = "invalid_room_id"
	ErrCodeInvalidRoomState    = "invalid_room_state"
	ErrCodeRoomFull            = "room_full"
	ErrCodeAlreadySubmitted    = "already_submitted"
	ErrCodeExecutionFailed     = "execution_failed"
	ErrCodeNoQuestionAvailable = "no_question_available"

	// Question errors
	ErrCodeQuestionNotFound = "question_not_found"
	ErrCodeInvalidQuestion  = "invalid_question_id"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeUpstreamError      = "upstream_error"
)
