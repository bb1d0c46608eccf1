package audit

import (
	"fmt"
	"strings"

	"github.com/mssola/useragent"
)

// DeviceDisplay renders a user-agent string as a short human-readable
// device description for audit records.
func DeviceDisplay(rawUA string) string {
	if rawUA == "" {
		return "Unknown Device"
	}

	ua := useragent.New(rawUA)
	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := ua.OSInfo().Name
	if os == "" {
		os = ua.Platform()
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(fmt.Sprintf("%s on %s", browser, os))
}
