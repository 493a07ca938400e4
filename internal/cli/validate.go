package cli

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

// ValidateAndResolveDirectory checks that the path exists and is a directory,
// then returns the absolute path. Exits fatally on failure.
func ValidateAndResolveDirectory(dirPath string) string {
	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Fatal().Str("path", dirPath).Msg("Directory not found")
		}
		log.Fatal().Err(err).Str("path", dirPath).Msg("Failed to access directory")
	}
	if !info.IsDir() {
		log.Fatal().Str("path", dirPath).Msg("Path is not a directory")
	}

	absPath, err := filepath.Abs(dirPath)
	if err == nil {
		dirPath = absPath
	}

	return dirPath
}

// FailureMessage returns the operator-facing message for a failure kind.
func FailureMessage(kind result.Kind) string {
	switch kind {
	case result.KindCredentials:
		return "AWS credentials are missing, expired, or lack permission. Check AWS_PROFILE or the access keys"
	case result.KindNotFound:
		return "Resource not found. Check the name and the AWS region"
	case result.KindTransient:
		return "AWS is unreachable or throttling requests. Please try again later"
	case result.KindInvalidInput:
		return "Invalid input"
	case result.KindConflict:
		return "Resource already exists"
	default:
		return "Operation failed"
	}
}

// HandleFailure logs a failed operation with a kind-specific message and exits.
func HandleFailure(err error) {
	kind := result.KindOf(err)
	log.Fatal().Err(err).Str("kind", kind.String()).Msg(FailureMessage(kind))
}
