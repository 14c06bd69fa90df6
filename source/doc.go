// Package source models map data sources and their tile caches.
//
// A [Cache] holds the tiles of one source. Each frame the map computes
// the ideal tiles for the view and calls [Cache.Update], which picks the
// renderable set: loaded ideal tiles, plus loaded children and ancestors
// standing in for ideal tiles that are still loading. Tiles carrying
// labels stay alive for the fade duration after they leave the set.
//
// Tiles hold per-layer [Bucket]s whose GPU buffers were uploaded by the
// loader. Tile decoding and network access live outside this package.
package source
