package observability

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentTransport wraps an http.RoundTripper with a client span per
// outbound request, so every task's HTTP call shows up under the
// task's parent span in the trace. There is no inbound HTTP server in
// this engine (the Producer API is an in-process Go call), so this
// wraps the *client* transport httpclient.Pool hands out, instead of
// wrapping an http.Handler the way a server-side middleware would.
func InstrumentTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &tracingTransport{next: next}
}

type tracingTransport struct {
	next http.RoundTripper
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !Enabled() {
		return t.next.RoundTrip(req)
	}

	ctx, span := Tracer().Start(req.Context(), req.Method+" "+req.URL.Host,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPMethod(req.Method),
			attribute.String("http.url", req.URL.String()),
			attribute.String("asyncreq.redirect_policy", "disabled"),
		),
	)
	defer span.End()

	resp, err := t.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}

	span.SetAttributes(semconv.HTTPStatusCode(resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	return resp, nil
}
