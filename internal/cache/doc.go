// Package cache provides a small LRU cache for GPU objects that must be
// released when they fall out of the cache.
//
//	groups := cache.New[hal.TextureView, hal.BindGroup](256, func(_ hal.TextureView, g hal.BindGroup) {
//		device.DestroyBindGroup(g)
//	})
//	g, err := groups.GetOrCreate(view, create)
//
// Cache is not safe for concurrent use; it lives on the render goroutine.
package cache
