package providers

import "strings"

// HeaderValue looks up a header case-insensitively. InboundRequest headers
// arrive with whatever casing the transport preserved.
func HeaderValue(headers map[string]string, name string) string {
	if len(headers) == 0 {
		return ""
	}
	if value, ok := headers[name]; ok {
		return strings.TrimSpace(value)
	}
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// QueryValue looks up a query parameter case-sensitively, matching how
// providers document their handshake parameters.
func QueryValue(query map[string]string, name string) string {
	if len(query) == 0 {
		return ""
	}
	return strings.TrimSpace(query[name])
}
