package fleet

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ActionDownload asks the device to fetch a file.
const ActionDownload = "download"

// JobDocument is the action document delivered to the device.
type JobDocument struct {
	Action      string `json:"action"`
	URL         string `json:"url"`
	Destination string `json:"destination,omitempty"`
}

// NewDownloadDocument returns a download action for rawURL.
func NewDownloadDocument(rawURL, destination string) (JobDocument, error) {
	if err := ValidateURL(rawURL); err != nil {
		return JobDocument{}, err
	}
	return JobDocument{
		Action:      ActionDownload,
		URL:         strings.TrimSpace(rawURL),
		Destination: strings.TrimSpace(destination),
	}, nil
}

// ValidateURL checks that rawURL is absolute, http(s), and names a host.
// Reachability is not checked.
func ValidateURL(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return fmt.Errorf("download URL is empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("download URL is malformed: %w", err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("download URL %q has no scheme", rawURL)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("download URL scheme %q is not http or https", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("download URL %q has no host", rawURL)
	}
	return nil
}

// Encode renders the document as the JSON job document body.
func (d JobDocument) Encode() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal job document: %w", err)
	}
	return string(b), nil
}
