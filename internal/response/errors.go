package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrExamNotAvailable        ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamWindowClosed        ErrCode = "EXAM_WINDOW_CLOSED"
	ErrAttemptNotFound         ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptNotOngoing       ErrCode = "ATTEMPT_NOT_ONGOING"
	ErrAttemptAlreadyOngoing   ErrCode = "ATTEMPT_ALREADY_ONGOING"
	ErrAttemptAlreadySubmitted ErrCode = "ATTEMPT_ALREADY_SUBMITTED"
	ErrQuestionNotInExam       ErrCode = "QUESTION_NOT_IN_EXAM"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Student ID or password is incorrect."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is not valid."
	case ErrTokenExpired:
		return "The authentication token has expired."
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The identifier format is not valid."
	case ErrInvalidPayload:
		return "The request payload is not valid."
	case ErrNotFound:
		return "The requested resource was not found."
	case ErrConflict:
		return "The resource already exists."
	case ErrExamNotAvailable:
		return "This exam is not currently available."
	case ErrExamWindowClosed:
		return "The exam window has closed."
	case ErrAttemptNotFound:
		return "No attempt was found for this exam."
	case ErrAttemptNotOngoing:
		return "The attempt is no longer ongoing."
	case ErrAttemptAlreadyOngoing:
		return "An attempt for this exam is already in progress."
	case ErrAttemptAlreadySubmitted:
		return "This attempt has already been submitted."
	case ErrQuestionNotInExam:
		return "The question does not belong to this exam."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
