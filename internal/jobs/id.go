// Package jobs names device deployment jobs.
package jobs

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeploymentPrefix starts every deployment job ID.
const DeploymentPrefix = "deploy_download_"

const idTimeFormat = "20060102_150405"

// GenerateDeploymentID returns deploy_download_{YYYYMMDD_HHMMSS}_{8 hex}.
// The random suffix keeps two submissions in the same second apart.
func GenerateDeploymentID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return DeploymentPrefix + at.UTC().Format(idTimeFormat) + "_" + suffix
}

// NormalizeID accepts a job ID with or without the deployment prefix and
// returns the full ID. Anything that does not look like a deployment ID is
// returned trimmed but otherwise unchanged.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, DeploymentPrefix) {
		return id
	}
	if _, ok := parseStamp(id); ok {
		return DeploymentPrefix + id
	}
	return id
}

// CreatedAt extracts the creation time encoded in a deployment job ID.
func CreatedAt(id string) (time.Time, bool) {
	if !strings.HasPrefix(id, DeploymentPrefix) {
		return time.Time{}, false
	}
	return parseStamp(strings.TrimPrefix(id, DeploymentPrefix))
}

// parseStamp parses "{YYYYMMDD_HHMMSS}_{suffix}".
func parseStamp(s string) (time.Time, bool) {
	if len(s) < len(idTimeFormat)+2 || s[len(idTimeFormat)] != '_' {
		return time.Time{}, false
	}
	t, err := time.Parse(idTimeFormat, s[:len(idTimeFormat)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
