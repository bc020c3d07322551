package entities

// ErrorKind classifies client-visible failures.
type ErrorKind string

const (
	ErrorKindNetwork    ErrorKind = "network_error"
	ErrorKindAuth       ErrorKind = "authentication_error"
	ErrorKindRateLimit  ErrorKind = "rate_limit_error"
	ErrorKindAPI        ErrorKind = "api_error"
	ErrorKindProcessing ErrorKind = "processing_error"
	ErrorKindValidation ErrorKind = "validation_error"
)

// Error is a structured error reported back to the originating client.
// It is marshaled as-is into the wire `error` message.
type Error struct {
	Kind        ErrorKind     `json:"type"`
	Message     string        `json:"message"`
	Details     string        `json:"details,omitempty"`
	Stage       PipelineStage `json:"stage,omitempty"`
	Retry       bool          `json:"retry,omitempty"`
	Reconnect   bool          `json:"reconnect,omitempty"`
	Recoverable bool          `json:"recoverable,omitempty"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return string(e.Kind) + ": " + e.Message + ": " + e.Details
	}
	return string(e.Kind) + ": " + e.Message
}

// NewValidationError reports a malformed or missing request field.
func NewValidationError(message string) *Error {
	return &Error{Kind: ErrorKindValidation, Message: message}
}

// NewAuthError reports a missing session; the client should reconnect.
func NewAuthError(message string) *Error {
	return &Error{Kind: ErrorKindAuth, Message: message, Reconnect: true}
}

// NewAPIError reports a failed collaborator call, tagged with the stage it
// failed in.
func NewAPIError(stage PipelineStage, message string, cause error) *Error {
	e := &Error{Kind: ErrorKindAPI, Message: message, Stage: stage}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// NewProcessingError reports a pipeline conflict or internal failure.
func NewProcessingError(message string) *Error {
	return &Error{Kind: ErrorKindProcessing, Message: message}
}

// Payload renders the error as wire fields for the outbound error message.
// The envelope's type discriminator is "error", so the kind travels as
// error_type.
func (e *Error) Payload() map[string]interface{} {
	payload := map[string]interface{}{
		"error_type": string(e.Kind),
		"message":    e.Message,
	}
	if e.Details != "" {
		payload["details"] = e.Details
	}
	if e.Stage != "" {
		payload["stage"] = string(e.Stage)
	}
	if e.Retry {
		payload["retry"] = true
	}
	if e.Reconnect {
		payload["reconnect"] = true
	}
	if e.Recoverable {
		payload["recoverable"] = true
	}
	return payload
}

// AsError coerces any error into a client-visible one. Unexpected internal
// failures become recoverable processing errors so no session is left stuck.
func AsError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{
		Kind:        ErrorKindProcessing,
		Message:     "internal error",
		Details:     err.Error(),
		Recoverable: true,
	}
}
