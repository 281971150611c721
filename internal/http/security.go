package http

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"

	"fintrack/internal/auth"
)

// trustedProxies defines networks that are trusted to set forwarding headers.
var trustedProxies = []*net.IPNet{
	parsecidr("127.0.0.0/8"),    // localhost
	parsecidr("10.0.0.0/8"),     // private networks
	parsecidr("172.16.0.0/12"),  // private networks
	parsecidr("192.168.0.0/16"), // private networks
}

func parsecidr(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

func isTrustedProxy(ip net.IP) bool {
	for _, network := range trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// extractClientIP extracts the real client IP, validating forwarded headers.
func extractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsedDirectIP := net.ParseIP(directIP)
	if parsedDirectIP == nil {
		return directIP
	}

	if isTrustedProxy(parsedDirectIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ips := strings.Split(xff, ",")
			if len(ips) > 0 {
				clientIP := strings.TrimSpace(ips[0])
				if parsedIP := net.ParseIP(clientIP); parsedIP != nil {
					return clientIP
				}
			}
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if parsedIP := net.ParseIP(xri); parsedIP != nil {
				return xri
			}
		}
	}

	return directIP
}

// validCSRF checks the double-submit token on a mutating request: the
// value sent in the X-CSRF-Token header (or csrf_token form field) must
// match the csrf cookie.
func validCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(auth.CSRFCookie)
	if err != nil || cookie.Value == "" {
		return false
	}

	sent := r.Header.Get("X-CSRF-Token")
	if sent == "" {
		sent = r.PostFormValue("csrf_token")
	}
	if sent == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(sent)) == 1
}

// ensureCSRFCookie sets the csrf cookie if the request does not already
// carry one, so forms rendered on this response can submit the token.
func ensureCSRFCookie(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(auth.CSRFCookie); err == nil && c.Value != "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CSRFCookie,
		Value:    auth.NewCSRFToken(),
		Path:     "/",
		HttpOnly: false, // page script reads it to set the header
		SameSite: http.SameSiteLaxMode,
	})
}
