package entity

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// maxURLLength defines the maximum allowed length for URLs to prevent DoS attacks.
const maxURLLength = 2048

// maxEmailLength matches the storage column width.
const maxEmailLength = 320

// Topics that sources and subscribers may reference.
var KnownTopics = []string{"Technology", "Business", "Politics", "Sports", "World"}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail trims and lower-cases an address and checks its format.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", &ValidationError{Field: "email", Message: "email is required"}
	}
	if len(email) > maxEmailLength {
		return "", &ValidationError{
			Field:   "email",
			Message: fmt.Sprintf("email must not exceed %d characters", maxEmailLength),
		}
	}
	if !emailPattern.MatchString(email) {
		return "", &ValidationError{Field: "email", Message: "invalid email format"}
	}
	return email, nil
}

// IsKnownTopic reports whether topic is in KnownTopics.
func IsKnownTopic(topic string) bool {
	for _, t := range KnownTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// NormalizeTopics trims, deduplicates and sorts topics, rejecting unknown names.
func NormalizeTopics(topics []string) ([]string, error) {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !IsKnownTopic(t) {
			return nil, &ValidationError{Field: "topics", Message: "unknown topic " + t}
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// NormalizePreferredTime parses "H:MM" or "HH:MM" and returns the zero-padded form.
func NormalizePreferredTime(value string) (string, error) {
	invalid := &ValidationError{Field: "preferred_time", Message: "must be HH:MM (24h), got " + value}

	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || len(mm) != 2 || hh == "" || len(hh) > 2 {
		return "", invalid
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return "", invalid
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return "", invalid
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// ValidateFeedURL checks that a configured feed address is a well-formed http(s) URL.
// Network-level checks (private addresses) happen at fetch time.
func ValidateFeedURL(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Field: "url", Message: "URL is required"}
	}

	// DoS protection: enforce maximum URL length
	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   "url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse URL: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "URL must use http or https scheme"}
	}

	if parsedURL.Host == "" {
		return &ValidationError{Field: "url", Message: "URL must have a valid host"}
	}

	return nil
}
