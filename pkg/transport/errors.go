package transport

import "fmt"

// Kind classifies a failed request/response pair.
type Kind int

const (
	// KindTimeout: the transport gave up waiting. Never retried here.
	KindTimeout Kind = iota
	// KindUnreachable: no response at all (refused, DNS, generic network).
	KindUnreachable
	// KindSessionExpired: the server answered 401; the session was
	// invalidated and the caller gets this instead of the raw response.
	KindSessionExpired
	// KindServer: any other error status, passed through unreinterpreted.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindSessionExpired:
		return "session_expired"
	default:
		return "server_error"
	}
}

// Error is the uniform error surfaced by the client. Message is localized
// and safe to show to the end user; transport detail stays in Err/Body
// and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Body    []byte
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// User-facing message tables. The vi strings are the product copy the
// mobile app ships with; en is the fallback.
var messages = map[string]map[Kind]string{
	"en": {
		KindTimeout:        "Server timed out. Please check your network and try again.",
		KindUnreachable:    "Cannot reach the server. Please check your network connection.",
		KindSessionExpired: "Your session has expired. Please sign in again.",
		KindServer:         "The server could not complete your request.",
	},
	"vi": {
		KindTimeout:        "Kết nối máy chủ quá thời gian. Vui lòng kiểm tra mạng hoặc thử lại.",
		KindUnreachable:    "Không thể kết nối đến máy chủ. Vui lòng kiểm tra kết nối mạng.",
		KindSessionExpired: "Phiên đăng nhập đã hết hạn. Vui lòng đăng nhập lại.",
		KindServer:         "Máy chủ không thể xử lý yêu cầu của bạn.",
	},
}

func message(locale string, k Kind) string {
	if tbl, ok := messages[locale]; ok {
		if m, ok := tbl[k]; ok {
			return m
		}
	}
	return messages["en"][k]
}

// NewServerError builds the passthrough error for a non-2xx status the
// classifier does not reinterpret. Callers keep the raw status and body.
func NewServerError(locale string, status int, body []byte) *Error {
	return &Error{
		Kind:    KindServer,
		Message: message(locale, KindServer),
		Status:  status,
		Body:    body,
		Err:     fmt.Errorf("server returned status %d", status),
	}
}
