// Package device derives presentation metadata from user-agent strings.
// Everything here is a best-effort substring heuristic for rendering device
// lists; it must never feed a security decision.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Info is the classified view of a stored user-agent string.
type Info struct {
	Class   string
	Browser string
	OS      string
}

// Classify buckets a user-agent string into device class, browser, and OS.
func Classify(userAgent string) Info {
	return Info{
		Class:   classOf(userAgent),
		Browser: browserOf(userAgent),
		OS:      osOf(userAgent),
	}
}

func classOf(ua string) string {
	switch {
	case strings.Contains(ua, "Mobile"):
		return "mobile"
	case strings.Contains(ua, "Tablet"):
		return "tablet"
	default:
		return "desktop"
	}
}

func browserOf(ua string) string {
	// Order matters: Edge and Chrome UAs both contain "Safari".
	switch {
	case strings.Contains(ua, "Edg"):
		return "Edge"
	case strings.Contains(ua, "Chrome"):
		return "Chrome"
	case strings.Contains(ua, "Firefox"):
		return "Firefox"
	case strings.Contains(ua, "Safari"):
		return "Safari"
	default:
		return "Unknown"
	}
}

func osOf(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "Android"):
		return "Android"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"), strings.Contains(ua, "iOS"):
		return "iOS"
	case strings.Contains(ua, "Mac"):
		return "macOS"
	case strings.Contains(ua, "Linux"):
		return "Linux"
	default:
		return "Unknown"
	}
}

// Fingerprint derives a stable 32-hex-char identifier from the user agent
// and IP of a request. It is advisory (carried as an optional token claim),
// not an authentication factor.
func Fingerprint(userAgent, ip string) string {
	sum := sha256.Sum256([]byte(userAgent + ":" + ip))
	return hex.EncodeToString(sum[:])[:32]
}
