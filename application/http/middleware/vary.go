package middleware

import (
	"rawhttp/application/http"
	"rawhttp/application/util/rule"
)

// addVary appends field to the Vary header unless it's listed already.
func addVary(res *http.Response, field string) {
	vary, ok := res.Header.Lookup("Vary")
	switch {
	case !ok || vary == "":
		res.Header.Set("Vary", field)
	case vary == "*" || rule.HasToken(vary, field):
	default:
		res.Header.Set("Vary", vary+", "+field)
	}
}
