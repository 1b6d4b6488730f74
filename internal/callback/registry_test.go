package callback

import (
	"context"
	"testing"

	"github.com/asyncreq/engine/internal/httpmodel"
	"github.com/stretchr/testify/assert"
)

func TestEmptyRegistryAcceptsAnything(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Known("AnyCallback"))
}

func TestRegisterRestrictsToKnownIDs(t *testing.T) {
	r := NewRegistry()
	r.Register("GoodCallback")
	assert.True(t, r.Known("GoodCallback"))
	assert.False(t, r.Known("OtherCallback"))
}

func TestUnregisterRemoves(t *testing.T) {
	r := NewRegistry()
	r.Register("GoodCallback")
	r.Unregister("GoodCallback")
	// Once the known set is empty again, the registry reopens.
	assert.True(t, r.Known("GoodCallback"))
}

type recordingCallback struct{}

func (recordingCallback) OnComplete(ctx context.Context, resp *httpmodel.Response) {}
func (recordingCallback) OnError(ctx context.Context, err *httpmodel.Error)        {}

func TestRegisterCallbackIsLookupable(t *testing.T) {
	r := NewRegistry()
	cb := recordingCallback{}
	r.RegisterCallback("GoodCallback", cb)

	assert.True(t, r.Known("GoodCallback"))
	got, ok := r.Lookup("GoodCallback")
	assert.True(t, ok)
	assert.Equal(t, cb, got)

	r.Unregister("GoodCallback")
	_, ok = r.Lookup("GoodCallback")
	assert.False(t, ok)
}
