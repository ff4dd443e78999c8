package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(NewShopifyAdapter())

	adapter, ok := r.Get("shopify")
	assert.True(t, ok)
	assert.Equal(t, "shopify", adapter.Platform())

	_, ok = r.Get("magento")
	assert.False(t, ok)
}

func TestRegistry_DuplicateRegistrationPanics(t *testing.T) {
	r := NewRegistry()
	r.Register(NewShopifyAdapter())
	assert.Panics(t, func() { r.Register(NewShopifyAdapter()) })
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	for _, tag := range []string{"shopify", "woocommerce", "daraz", "custom"} {
		_, ok := r.Get(tag)
		assert.True(t, ok, "missing adapter for %s", tag)
	}
	assert.Len(t, r.Platforms(), 4)
}
