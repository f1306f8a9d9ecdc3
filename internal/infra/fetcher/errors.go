package fetcher

import "errors"

var (
	// ErrInvalidURL is returned when the URL cannot be parsed or uses an unsupported scheme.
	ErrInvalidURL = errors.New("invalid URL or unsupported scheme")

	// ErrPrivateIP is returned when the host resolves to a private, loopback or link-local address.
	ErrPrivateIP = errors.New("private IP access denied (SSRF prevention)")

	// ErrTooManyRedirects is returned when the redirect chain exceeds MaxRedirects.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrBodyTooLarge is returned when the response exceeds MaxBodySize.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrTimeout is returned when the page does not arrive within Timeout.
	ErrTimeout = errors.New("request timeout")

	// ErrNoContent is returned when readability finds no article text on the page.
	ErrNoContent = errors.New("no readable content")
)
