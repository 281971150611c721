package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// parseDate parses a YYYY-MM-DD form value.
func parseDate(dateStr string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(dateStr))
}

// parseOptionalDate returns the zero time for an empty value.
func parseOptionalDate(dateStr string) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return time.Time{}, nil
	}
	return parseDate(dateStr)
}

// parsePage reads the page query parameter, defaulting to 1.
func parsePage(r *http.Request) int {
	v := strings.TrimSpace(r.URL.Query().Get("page"))
	if v == "" {
		return 1
	}
	page, err := strconv.Atoi(v)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// isAJAX reports whether the request came from the page script rather
// than a plain form submission.
func isAJAX(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

// redirectWithNotice redirects carrying a one-shot notification in the
// query string; templates render it into the notification container.
func redirectWithNotice(w http.ResponseWriter, r *http.Request, path string, level NotificationLevel, message string) {
	q := url.Values{}
	q.Set("notice", message)
	q.Set("level", string(level))
	http.Redirect(w, r, path+"?"+q.Encode(), http.StatusSeeOther)
}
