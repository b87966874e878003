package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

type deviceKey struct{}

const maxDeviceLabel = 80

// Device labels the scanning device from its User-Agent, e.g.
// "Chrome 120.0 on Android 14", so audit rows show which phone scanned.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		label := DeviceLabel(r.Header.Get("User-Agent"))
		ctx := context.WithValue(r.Context(), deviceKey{}, label)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DeviceLabel summarises a User-Agent header.
func DeviceLabel(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "unknown"
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	os := ua.OS()

	var label string
	switch {
	case name != "" && os != "":
		label = fmt.Sprintf("%s %s on %s", name, version, os)
	case name != "":
		label = strings.TrimSpace(name + " " + version)
	default:
		label = raw
	}
	if ua.Mobile() {
		label += " (mobile)"
	}
	if len(label) > maxDeviceLabel {
		label = label[:maxDeviceLabel]
	}
	return label
}

func GetDevice(ctx context.Context) string {
	if d, ok := ctx.Value(deviceKey{}).(string); ok {
		return d
	}
	return ""
}
