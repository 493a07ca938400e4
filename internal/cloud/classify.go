package cloud

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

// AWS error codes grouped by the failure kind they map to.
var (
	notFoundCodes = map[string]bool{
		"ResourceNotFoundException": true,
		"NotFoundException":         true,
		"NoSuchBucket":              true,
		"NoSuchKey":                 true,
	}

	credentialCodes = map[string]bool{
		"ExpiredToken":                true,
		"ExpiredTokenException":       true,
		"InvalidClientTokenId":        true,
		"UnrecognizedClientException": true,
		"SignatureDoesNotMatch":       true,
		"AccessDenied":                true,
		"AccessDeniedException":       true,
		"NotAuthorizedException":      true,
		"UnauthorizedException":       true,
		"InvalidAccessKeyId":          true,
		"MissingAuthenticationToken":  true,
	}

	transientCodes = map[string]bool{
		"Throttling":                       true,
		"ThrottlingException":              true,
		"TooManyRequestsException":         true,
		"ClientLimitExceededException":     true,
		"ConnectionLimitExceededException": true,
		"LimitExceededException":           true,
		"ServiceUnavailable":               true,
		"ServiceUnavailableException":      true,
		"InternalFailure":                  true,
		"InternalFailureException":         true,
		"InternalServerError":              true,
		"InternalException":                true,
		"RequestTimeout":                   true,
		"RequestTimeoutException":          true,
	}

	invalidInputCodes = map[string]bool{
		"InvalidRequestException":   true,
		"InvalidArgumentException":  true,
		"ValidationException":       true,
		"InvalidParameterException": true,
		"InvalidEndpointException":  true,
	}

	conflictCodes = map[string]bool{
		"ResourceAlreadyExistsException": true,
		"ConflictException":              true,
	}
)

// Classify maps an error returned by an AWS SDK call (or by local I/O on a
// media stream) onto a failure kind. Errors already classified keep their kind.
func Classify(err error) result.Kind {
	if err == nil {
		return result.KindUnknown
	}

	var classified *result.Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return result.KindTransient
	}
	if errors.Is(err, context.Canceled) {
		return result.KindUnknown
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := classifyCode(apiErr.ErrorCode()); ok {
			return kind
		}
	}

	return classifyMessage(err)
}

func classifyCode(code string) (result.Kind, bool) {
	switch {
	case notFoundCodes[code]:
		return result.KindNotFound, true
	case credentialCodes[code]:
		return result.KindCredentials, true
	case transientCodes[code]:
		return result.KindTransient, true
	case invalidInputCodes[code]:
		return result.KindInvalidInput, true
	case conflictCodes[code]:
		return result.KindConflict, true
	}
	return result.KindUnknown, false
}

// classifyMessage falls back to message patterns for errors that never
// reached the service, such as credential resolution or dial failures.
func classifyMessage(err error) result.Kind {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "failed to retrieve credentials") ||
		strings.Contains(msg, "no valid providers in chain") ||
		strings.Contains(msg, "shared config profile") ||
		strings.Contains(msg, "security token included in the request is invalid") ||
		strings.Contains(msg, "expired"):
		return result.KindCredentials

	case strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "unreachable") ||
		strings.Contains(msg, "exceeded maximum number of attempts"):
		return result.KindTransient

	default:
		return result.KindUnknown
	}
}

// Fail classifies err, logs it, and returns a failed Result for op.
func Fail[T any](op string, err error) result.Result[T] {
	kind := Classify(err)
	log.Error().Err(err).Str("op", op).Str("kind", kind.String()).Msg("AWS operation failed")
	return result.Failure[T](kind, op, err)
}
