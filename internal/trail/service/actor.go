package service

import "github.com/mssola/useragent"

// userAgentSummary condenses a raw User-Agent header into the short
// "Browser version / OS" form stored on audit headers. Unparseable agents
// are kept verbatim, truncated so a hostile header cannot bloat the row.
func userAgentSummary(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		if len(raw) > 120 {
			return raw[:120]
		}
		return raw
	}
	summary := name
	if version != "" {
		summary += " " + majorVersion(version)
	}
	if os := ua.OSInfo().Name; os != "" {
		summary += " / " + os
	}
	return summary
}

func majorVersion(version string) string {
	for i := 0; i < len(version); i++ {
		if version[i] == '.' {
			return version[:i]
		}
	}
	return version
}
