// Package geo holds the camera transform: web-mercator projection of tile
// coordinates to screen and clip space, and the set of tiles covering the
// viewport.
package geo
