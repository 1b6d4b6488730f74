package httpmodel

import "fmt"

// ErrorKind tags the Error sum type. Handlers dispatch on Kind rather
// than on a type hierarchy, per the "exception-based control flow ->
// tagged variants" design note.
type ErrorKind int

const (
	// ErrRequest covers network/timeout/SSL/protocol/unknown transport
	// failures.
	ErrRequest ErrorKind = iota
	// ErrHTTPClient is a 4xx response surfaced as an error because
	// RaiseErrorResponses was set.
	ErrHTTPClient
	// ErrHTTPServer is a 5xx response surfaced as an error because
	// RaiseErrorResponses was set.
	ErrHTTPServer
	// ErrTooManyRedirects is raised when the redirect chain would
	// exceed max_redirects.
	ErrTooManyRedirects
	// ErrRecursiveRedirect is raised when a redirect would revisit a
	// URL already in the chain.
	ErrRecursiveRedirect
	// ErrResponseTooLarge is raised when the body exceeds the
	// configured size ceiling.
	ErrResponseTooLarge
)

func (k ErrorKind) String() string {
	switch k {
	case ErrRequest:
		return "request_error"
	case ErrHTTPClient:
		return "client_error"
	case ErrHTTPServer:
		return "server_error"
	case ErrTooManyRedirects:
		return "too_many_redirects"
	case ErrRecursiveRedirect:
		return "recursive_redirect"
	case ErrResponseTooLarge:
		return "response_too_large"
	default:
		return "unknown_error"
	}
}

// Error is the engine's tagged error union. Every variant carries the
// correlation id and callback args the callback needs to identify
// which task failed; the remaining fields are populated per-Kind.
type Error struct {
	Kind          ErrorKind
	CorrelationID string
	CallbackArgs  map[string]any

	// RequestError fields.
	ClassName string
	Message   string
	Backtrace []string
	ErrorType string // e.g. "timeout", "connection_refused", "ssl", "protocol", "unknown"

	// Shared transport/HTTP fields.
	DurationSec float64
	URL         string
	Method      Method

	// HttpError fields (ErrHTTPClient / ErrHTTPServer).
	Response *Response

	// RedirectError fields (ErrTooManyRedirects / ErrRecursiveRedirect).
	RedirectChain []string
	OffendingURL  string
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrHTTPClient, ErrHTTPServer:
		status := 0
		if e.Response != nil {
			status = e.Response.Status
		}
		return fmt.Sprintf("%s: HTTP %d for %s %s", e.Kind, status, e.Method, e.URL)
	case ErrTooManyRedirects:
		return fmt.Sprintf("too many redirects (%d) reaching %s", len(e.RedirectChain), e.OffendingURL)
	case ErrRecursiveRedirect:
		return fmt.Sprintf("recursive redirect to %s", e.OffendingURL)
	case ErrResponseTooLarge:
		return fmt.Sprintf("response body exceeded size ceiling for %s %s", e.Method, e.URL)
	default:
		return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
	}
}

// NewRequestError builds a transport-layer RequestError.
func NewRequestError(correlationID, errorType, className, message string, duration float64, url string, method Method, callbackArgs map[string]any) *Error {
	return &Error{
		Kind:          ErrRequest,
		CorrelationID: correlationID,
		CallbackArgs:  callbackArgs,
		ClassName:     className,
		Message:       message,
		ErrorType:     errorType,
		DurationSec:   duration,
		URL:           url,
		Method:        method,
	}
}

// NewHTTPError builds an HttpError from a non-2xx Response, tagging it
// ClientError or ServerError by a factory decision based on status,
// per the "error subclass hierarchy -> tagged union + factory" note.
func NewHTTPError(resp *Response) *Error {
	kind := ErrHTTPServer
	if resp.ClientError() {
		kind = ErrHTTPClient
	}
	return &Error{
		Kind:          kind,
		CorrelationID: resp.CorrelationID,
		CallbackArgs:  resp.CallbackArgs,
		DurationSec:   resp.DurationSec,
		URL:           resp.URL,
		Method:        resp.Method,
		Response:      resp,
	}
}

// NewTooManyRedirectsError builds a RedirectError for an overlong chain.
func NewTooManyRedirectsError(correlationID string, chain []string, offendingURL string, callbackArgs map[string]any) *Error {
	return &Error{
		Kind:          ErrTooManyRedirects,
		CorrelationID: correlationID,
		CallbackArgs:  callbackArgs,
		RedirectChain: chain,
		OffendingURL:  offendingURL,
	}
}

// NewRecursiveRedirectError builds a RedirectError for a cyclic chain.
func NewRecursiveRedirectError(correlationID string, chain []string, offendingURL string, callbackArgs map[string]any) *Error {
	return &Error{
		Kind:          ErrRecursiveRedirect,
		CorrelationID: correlationID,
		CallbackArgs:  callbackArgs,
		RedirectChain: chain,
		OffendingURL:  offendingURL,
	}
}

// NewResponseTooLargeError builds a ResponseTooLargeError.
func NewResponseTooLargeError(correlationID, url string, method Method, callbackArgs map[string]any) *Error {
	return &Error{
		Kind:          ErrResponseTooLarge,
		CorrelationID: correlationID,
		CallbackArgs:  callbackArgs,
		URL:           url,
		Method:        method,
	}
}

// WireError is the version-1 JSON wire shape for a failed task.
type WireError struct {
	ErrorClass   string         `json:"error_class"`
	Message      string         `json:"message"`
	Backtrace    []string       `json:"backtrace,omitempty"`
	ClassName    string         `json:"class_name"`
	ErrorType    string         `json:"error_type"`
	RequestID    string         `json:"request_id"`
	Duration     float64        `json:"duration"`
	URL          string         `json:"url"`
	HTTPMethod   string         `json:"http_method"`
	CallbackArgs map[string]any `json:"callback_args,omitempty"`
	Redirects    []string       `json:"redirects,omitempty"`
}

// ToWire converts an Error to its JSON wire representation.
func (e *Error) ToWire() *WireError {
	w := &WireError{
		ErrorClass:   e.Kind.String(),
		Message:      e.Message,
		Backtrace:    e.Backtrace,
		ClassName:    e.ClassName,
		ErrorType:    e.ErrorType,
		RequestID:    e.CorrelationID,
		Duration:     e.DurationSec,
		URL:          e.URL,
		HTTPMethod:   methodLower(e.Method),
		CallbackArgs: e.CallbackArgs,
	}
	if len(e.RedirectChain) > 0 {
		w.Redirects = e.RedirectChain
	}
	if e.Kind == ErrTooManyRedirects && e.OffendingURL != "" {
		// RedirectChain holds only the hops already followed; the hop
		// that tipped over max_redirects is reported in OffendingURL and
		// never gets its own RedirectHop call, so append it here.
		w.Redirects = append(append([]string(nil), e.RedirectChain...), e.OffendingURL)
	}
	if e.Kind == ErrHTTPClient || e.Kind == ErrHTTPServer {
		w.Message = e.Error()
		if e.Response != nil {
			w.HTTPMethod = methodLower(e.Response.Method)
			w.URL = e.Response.URL
			w.Redirects = e.Response.Redirects
		}
	}
	return w
}
