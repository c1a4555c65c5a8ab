// Package uaparse classifies User-Agent strings into coarse
// browser/OS/device families for session snapshots. It intentionally
// covers only the mainstream families; anything else degrades to "Other".
package uaparse

import "strings"

// Info is the parsed view of a User-Agent header.
type Info struct {
	Browser string
	OS      string
	Device  string
}

type pattern struct {
	marker string
	name   string
	// versionAfter is the substring the version number follows, when it
	// differs from the marker itself.
	versionAfter string
}

var browserPatterns = []pattern{
	{marker: "Edg/", name: "Edge", versionAfter: "Edg/"},
	{marker: "OPR/", name: "Opera", versionAfter: "OPR/"},
	{marker: "SamsungBrowser/", name: "Samsung Internet", versionAfter: "SamsungBrowser/"},
	{marker: "Firefox/", name: "Firefox", versionAfter: "Firefox/"},
	{marker: "Chrome/", name: "Chrome", versionAfter: "Chrome/"},
	{marker: "CriOS/", name: "Chrome", versionAfter: "CriOS/"},
	{marker: "FxiOS/", name: "Firefox", versionAfter: "FxiOS/"},
	{marker: "Safari/", name: "Safari", versionAfter: "Version/"},
	{marker: "curl/", name: "curl", versionAfter: "curl/"},
}

var osPatterns = []pattern{
	{marker: "Windows NT", name: "Windows", versionAfter: "Windows NT "},
	{marker: "Android", name: "Android", versionAfter: "Android "},
	{marker: "iPhone OS", name: "iOS", versionAfter: "iPhone OS "},
	{marker: "iPad; CPU OS", name: "iOS", versionAfter: "CPU OS "},
	{marker: "Mac OS X", name: "macOS", versionAfter: "Mac OS X "},
	{marker: "CrOS", name: "ChromeOS"},
	{marker: "Linux", name: "Linux"},
}

// Parse extracts browser, OS, and device families from a User-Agent
// string. Empty input yields "Other" across the board so callers can
// persist the result without nil checks.
func Parse(ua string) Info {
	info := Info{Browser: "Other", OS: "Other", Device: "Other"}
	if strings.TrimSpace(ua) == "" {
		return info
	}

	for _, p := range browserPatterns {
		if !strings.Contains(ua, p.marker) {
			continue
		}
		info.Browser = p.name
		if v := versionToken(ua, p.versionAfter); v != "" {
			info.Browser += " " + v
		}
		break
	}

	for _, p := range osPatterns {
		if !strings.Contains(ua, p.marker) {
			continue
		}
		info.OS = p.name
		if p.versionAfter != "" {
			if v := versionToken(ua, p.versionAfter); v != "" {
				info.OS += " " + strings.ReplaceAll(v, "_", ".")
			}
		}
		break
	}

	info.Device = deviceFamily(ua)
	return info
}

func deviceFamily(ua string) string {
	switch {
	case strings.Contains(ua, "iPhone"):
		return "iPhone"
	case strings.Contains(ua, "iPad"):
		return "iPad"
	case strings.Contains(ua, "Android") && strings.Contains(ua, "Mobile"):
		return "Android Phone"
	case strings.Contains(ua, "Android"):
		return "Android Tablet"
	case strings.Contains(ua, "Windows"), strings.Contains(ua, "Macintosh"),
		strings.Contains(ua, "X11"), strings.Contains(ua, "CrOS"):
		return "Desktop"
	case strings.HasPrefix(ua, "curl/"), strings.Contains(ua, "bot"),
		strings.Contains(ua, "Bot"):
		return "Other"
	default:
		return "Other"
	}
}

func versionToken(ua, after string) string {
	if after == "" {
		return ""
	}
	idx := strings.Index(ua, after)
	if idx < 0 {
		return ""
	}
	rest := ua[idx+len(after):]
	end := strings.IndexFunc(rest, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != '.' && r != '_'
	})
	if end == -1 {
		end = len(rest)
	}
	return strings.Trim(rest[:end], "._")
}
