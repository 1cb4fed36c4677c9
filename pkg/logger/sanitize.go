package logger

import (
	"log/slog"
	"strings"
)

// maxUserAgentLen bounds user-agent strings in log output; hostile
// clients send arbitrarily long ones.
const maxUserAgentLen = 160

// MaskIP trims an IP address for logging: the last IPv4 octet or the
// IPv6 interface bits are dropped so logs stay useful without carrying
// a full network identifier.
func MaskIP(ip string) string {
	if idx := strings.LastIndex(ip, "."); idx > 0 {
		return ip[:idx] + ".x"
	}
	if idx := strings.LastIndex(ip, ":"); idx > 0 {
		return ip[:idx] + ":x"
	}
	return "[invalid-ip]"
}

// ClipUserAgent truncates an over-long user-agent string for logging.
func ClipUserAgent(ua string) string {
	if len(ua) > maxUserAgentLen {
		return ua[:maxUserAgentLen] + "..."
	}
	return ua
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// SensitiveQuery reports whether a raw query string carries parameters
// that must never reach the logs.
func SensitiveQuery(rawQuery string) bool {
	sensitiveParams := []string{
		"password",
		"token",
		"secret",
		"api_key",
		"apikey",
		"auth",
	}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
