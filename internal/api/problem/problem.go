package problem

import (
	"encoding/json"
	"net/http"
	"strings"
)

const contentType = "application/problem+json"
const baseTypeURL = "https://errors.fx-wallet.dev/"

// Details represents RFC 7807 Problem Details.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Instance  string `json:"instance"`
	RequestID string `json:"request_id"`
}

// Type expands a slug such as "ledger/insufficient-funds" into a type URI.
// Absolute URIs and about:blank pass through unchanged.
func Type(slug string) string {
	switch {
	case slug == "":
		return "about:blank"
	case slug == "about:blank", strings.HasPrefix(slug, "http://"), strings.HasPrefix(slug, "https://"):
		return slug
	}
	return baseTypeURL + slug
}

// Write sends an RFC 7807 error. problemType may be a slug or a full URI.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, detail string) {
	instance := ""
	requestID := ""
	if r != nil {
		instance = r.URL.Path
		requestID = r.Header.Get("X-Trace-ID")
	}
	if requestID == "" {
		requestID = w.Header().Get("X-Trace-ID")
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Details{
		Type:      Type(problemType),
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    detail,
		Instance:  instance,
		RequestID: requestID,
	})
}
