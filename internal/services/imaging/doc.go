// Package imaging decodes stored images, renders resized JPEG responses and
// derived thumbnails, and caches rendered bytes.
//
// Rendering never enlarges: the requested box bounds the output and the
// aspect ratio of the source is kept. Every response is flattened onto an
// opaque canvas and encoded as JPEG at quality 90.
package imaging
