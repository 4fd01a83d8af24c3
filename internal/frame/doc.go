// Package frame provides the raster primitives used by the compositing pipeline.
//
// A RectPatch is an immutable rectangle of packed pixels addressed by its
// top-left corner. A Canvas owns one full-frame buffer and applies patches onto
// it row by row.
//
// # Bootstrap
//
// A Canvas holds no valid content until a patch covering its exact extent
// (x=0, y=0, w=width, h=height) has been applied. Any other patch applied before
// that point fails with ErrUninitializedCanvas.
//
// # Check Order
//
// Apply validates in a fixed order so callers see a stable error for a given
// input: format and payload (ErrInvalidPatch), then bounds (ErrOutOfBounds),
// then bootstrap (ErrUninitializedCanvas).
package frame
