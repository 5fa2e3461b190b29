// Package messages implements the supported Continuity message families.
//
// Byte layouts follow the public furiousMAC continuity captures. Fixed-width
// families require their exact payload length; any other length decodes as
// a malformed record and falls back to raw passthrough.
package messages
