// Package protocol owns the broker wire format.
//
// Ownership boundary:
// - request frame encode/decode
// - response frame encode/decode
// - framing error sentinels
//
// A frame is the literal signature, an ordered run of fields, and a
// terminator byte. Each field is a five-digit ASCII length, the raw value
// bytes, and a NUL delimiter, so value bytes (NUL included) never alias
// the framing.
package protocol
