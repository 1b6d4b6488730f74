package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTraceContextEmptyWhenDisabled(t *testing.T) {
	tc := ExtractTraceContext(context.Background())
	assert.Empty(t, tc.TraceParent)
}

func TestInjectTraceContextNoopOnEmptyTraceParent(t *testing.T) {
	ctx := context.Background()
	got := InjectTraceContext(ctx, TraceContext{})
	assert.Equal(t, ctx, got)
}

func TestInjectTraceContextCarriesTraceParent(t *testing.T) {
	tc := TraceContext{TraceParent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}
	ctx := InjectTraceContext(context.Background(), tc)
	assert.NotEqual(t, context.Background(), ctx, "a non-empty TraceParent must be extracted into the context")
}
