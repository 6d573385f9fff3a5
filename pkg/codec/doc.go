// Package codec implements the versioned binary payload formats that
// travel inside binary frames: meshes, whole-project snapshots and
// image lists.
//
// Every payload starts with a 4-byte ASCII magic followed by a 1-byte
// format version. All multi-byte integers are big-endian, floats are
// IEEE 754 float32, strings are a uint16 byte length followed by UTF-8
// bytes, and booleans are a single 0x00/0x01 byte.
//
// Mesh payload (magic "MESH"):
//
//	magic[4] version:u8 messageType:u8 fieldFlags:u32
//	vertexCount:u32 faceCount:u32 reserved:u16
//	...sections in ascending field-bit order...
//
// Each field bit set in fieldFlags contributes one section. Per-vertex
// sections are tightly packed records repeated vertexCount times;
// per-face sections repeat faceCount times. Variable-arity face
// sections (corner indices, per-corner UV and normal indices) prefix
// each record with a 1-byte corner count.
//
// Project payload (magic "PROJ"):
//
//	magic[4] version:u8 modelCount:u16 currentModel:u8 name:string
//	...models...
//
// Each model is its name, a mesh count, the active category, the
// selection list and then that many mesh contexts. A mesh context is
// the flat attribute block followed by a length-prefixed embedded mesh
// payload carrying every field.
//
// Image list payload (magic "IMG ", trailing space):
//
//	magic[4] version:u8 imageCount:u16
//	{id:u16 format:u8 width:u32 height:u32 dataLength:u32 data}...
//
// Decoding is strict: an unknown magic, an unsupported version, a
// count that overruns the buffer, or trailing bytes after the last
// section all fail the whole payload. Decoders never return partial
// results.
package codec
