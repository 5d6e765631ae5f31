package status

type Status struct {
	Code         uint
	ReasonPhrase string
}

// UnknownReason is used in the status line of codes absent from the table.
const UnknownReason = "Unknown"

// Informational 1XX
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15.2
var (
	Continue = add(Status{100, "Continue"})
)

// Successful 2XX
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15.3
var (
	OK        = add(Status{200, "OK"})
	NoContent = add(Status{204, "No Content"})
)

// Redirection 3xx
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15.4
var (
	MovedPermanently = add(Status{301, "Moved Permanently"})
	Found            = add(Status{302, "Found"})
	NotModified      = add(Status{304, "Not Modified"})
)

// Client Error 4xx
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15.5
var (
	BadRequest       = add(Status{400, "Bad Request"})
	Forbidden        = add(Status{403, "Forbidden"})
	NotFound         = add(Status{404, "Not Found"})
	MethodNotAllowed = add(Status{405, "Method Not Allowed"})
	ContentTooLarge  = add(Status{413, "Payload Too Large"})
)

// Server Error 5xx
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15.6
var (
	InternalServerError = add(Status{500, "Internal Server Error"})
)

var sm = make(map[uint]*Status)

func add(status Status) Status {
	sm[status.Code] = &status
	return status
}

// FromCode looks the code up in the reason phrase table.
// Unknown codes get [UnknownReason] and ok == false.
func FromCode(code uint) (status Status, ok bool) {
	s, ok := sm[code]
	if !ok {
		return Status{Code: code, ReasonPhrase: UnknownReason}, false
	}

	return *s, true
}

// IsInformational reports whether code is 1xx.
func IsInformational(code uint) bool { return 100 <= code && code < 200 }

// AllowsBody reports whether a response with code may carry content.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-6.3-2.1
func AllowsBody(code uint) bool {
	return !IsInformational(code) && code != NoContent.Code && code != NotModified.Code
}
