package getcid

import (
	"net/http"
	"strings"
)

// Kind is the classified result of an upstream activation call.
type Kind int

const (
	Confirmed Kind = iota
	InvalidInstallationID
	BlockedInstallationID
	UpstreamAuthFailure
	UpstreamQuotaExceeded
	UpstreamBusy
	UpstreamGenericError
)

func (k Kind) String() string {
	switch k {
	case Confirmed:
		return "confirmed"
	case InvalidInstallationID:
		return "invalid_iid"
	case BlockedInstallationID:
		return "blocked_iid"
	case UpstreamAuthFailure:
		return "upstream_auth_failure"
	case UpstreamQuotaExceeded:
		return "upstream_quota_exceeded"
	case UpstreamBusy:
		return "upstream_busy"
	default:
		return "upstream_error"
	}
}

// minConfirmationLength is a heuristic floor: real confirmation ids are far
// longer, so anything shorter on a 2xx response is treated as an error.
const minConfirmationLength = 10

// Rule maps a predicate over the upstream response to an outcome kind.
type Rule struct {
	Name  string
	Match func(status int, body string) bool
	Kind  Kind
}

// Rules is evaluated in order; the first match wins. A response matching
// none of them is Confirmed.
var Rules = []Rule{
	{Name: "wrong iid", Kind: InvalidInstallationID, Match: bodyContains("Wrong IID")},
	{Name: "blocked iid", Kind: BlockedInstallationID, Match: bodyContains("Blocked IID")},
	{Name: "token rejected", Kind: UpstreamAuthFailure, Match: statusIs(http.StatusUnauthorized)},
	{Name: "token limit reached", Kind: UpstreamQuotaExceeded, Match: statusIs(http.StatusTooManyRequests)},
	{Name: "server busy", Kind: UpstreamBusy, Match: statusIs(http.StatusServiceUnavailable)},
	{Name: "http error", Kind: UpstreamGenericError, Match: func(status int, _ string) bool {
		return status < 200 || status > 299
	}},
	{Name: "error response", Kind: UpstreamGenericError, Match: func(_ int, body string) bool {
		return strings.Contains(body, "Error") || strings.Contains(body, "Invalid")
	}},
	{Name: "short response", Kind: UpstreamGenericError, Match: func(_ int, body string) bool {
		return len(body) < minConfirmationLength
	}},
}

// Classify applies Rules to a status code and trimmed body.
func Classify(status int, body string) (Kind, string) {
	for _, r := range Rules {
		if r.Match(status, body) {
			return r.Kind, r.Name
		}
	}
	return Confirmed, ""
}

func bodyContains(s string) func(int, string) bool {
	return func(_ int, body string) bool {
		return strings.Contains(body, s)
	}
}

func statusIs(code int) func(int, string) bool {
	return func(status int, _ string) bool {
		return status == code
	}
}
