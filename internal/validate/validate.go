package validate

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Clip constraints — single source of truth for the timeline registry and
// the upload endpoints: MP4 container only, 50 MB per clip.
const (
	MaxClipBytes = 50 * 1024 * 1024

	MP4ContentType = "video/mp4"
)

// Text field length limits shared by backend handlers and clients.
const (
	MaxEventNameLength   = 200
	MaxInviteeNameLength = 100
)

// IsMP4 accepts a file by declared content type or, when the type is
// missing or generic, by its extension.
func IsMP4(name, contentType string) bool {
	switch strings.ToLower(contentType) {
	case MP4ContentType:
		return true
	case "", "application/octet-stream":
		return strings.EqualFold(filepath.Ext(name), ".mp4")
	default:
		return false
	}
}

func checkLen(value string, max int, field string) string {
	if len(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func EventName(s string) string   { return checkLen(s, MaxEventNameLength, "event name") }
func InviteeName(s string) string { return checkLen(s, MaxInviteeNameLength, "invitee name") }
