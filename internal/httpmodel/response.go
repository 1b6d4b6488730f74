package httpmodel

// Response is the immutable result of a successful HTTP exchange (from
// the engine's point of view — a non-2xx status is still a Response
// unless raise_error_responses turns it into an HttpError upstream).
type Response struct {
	Status        int
	Headers       Headers
	Body          *Payload
	DurationSec   float64
	CorrelationID string
	URL           string
	Method        Method
	CallbackArgs  map[string]any
	Redirects     []string
}

// Success reports 200 <= status < 300.
func (r *Response) Success() bool { return r.Status >= 200 && r.Status < 300 }

// Redirect reports 300 <= status < 400.
func (r *Response) Redirect() bool { return r.Status >= 300 && r.Status < 400 }

// ClientError reports 400 <= status < 500.
func (r *Response) ClientError() bool { return r.Status >= 400 && r.Status < 500 }

// ServerError reports 500 <= status < 600.
func (r *Response) ServerError() bool { return r.Status >= 500 && r.Status < 600 }

// WireResponse is the version-1 JSON wire shape for a completed
// Response, handed to the JobBroker as a callback job argument (or
// externalized behind an ExternalStorage reference).
type WireResponse struct {
	Status       int            `json:"status"`
	Headers      Headers        `json:"headers"`
	Body         WirePayload    `json:"body"`
	Duration     float64        `json:"duration"`
	RequestID    string         `json:"request_id"`
	URL          string         `json:"url"`
	HTTPMethod   string         `json:"http_method"`
	CallbackArgs map[string]any `json:"callback_args,omitempty"`
	Redirects    []string       `json:"redirects"`
}

// ToWire converts a Response to its JSON wire representation.
func (r *Response) ToWire() *WireResponse {
	redirects := r.Redirects
	if redirects == nil {
		redirects = []string{}
	}
	w := &WireResponse{
		Status:       r.Status,
		Headers:      r.Headers,
		Duration:     r.DurationSec,
		RequestID:    r.CorrelationID,
		URL:          r.URL,
		HTTPMethod:   methodLower(r.Method),
		CallbackArgs: r.CallbackArgs,
		Redirects:    redirects,
	}
	if r.Body != nil {
		w.Body = r.Body.ToWire()
	}
	return w
}

func methodLower(m Method) string {
	switch m {
	case MethodGET:
		return "get"
	case MethodPOST:
		return "post"
	case MethodPUT:
		return "put"
	case MethodPATCH:
		return "patch"
	case MethodDELETE:
		return "delete"
	default:
		return string(m)
	}
}
