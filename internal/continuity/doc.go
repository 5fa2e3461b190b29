// Package continuity owns the Continuity manufacturer-data wire contract.
//
// Ownership boundary:
// - record framing over tlv fields
// - tag to codec registry
// - frame decode/encode with partial results
// - manufacturer-data vendor prefix
//
// Message family layouts live in continuity/messages and are installed
// into a Registry before it is sealed.
package continuity
