package continuity

import "fmt"

// Tag is the one-byte record type.
type Tag uint8

const (
	TagAirPrint      Tag = 0x03
	TagAirDrop       Tag = 0x05
	TagAirPlayTarget Tag = 0x09
	TagAirPlaySource Tag = 0x0A
	TagFindMy        Tag = 0x12
)

var tagNames = map[Tag]string{
	TagAirPrint:      "airprint",
	TagAirDrop:       "airdrop",
	TagAirPlayTarget: "airplay-target",
	TagAirPlaySource: "airplay-source",
	TagFindMy:        "findmy",
}

// Family returns the family name for supported tags.
func (t Tag) Family() (string, bool) {
	name, ok := tagNames[t]
	return name, ok
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", uint8(t))
}
