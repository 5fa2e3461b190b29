package messages

import "github.com/danmuck/continuityctl/internal/continuity"

// Register installs every supported family into reg.
func Register(reg *continuity.Registry) error {
	codecs := []struct {
		tag   continuity.Tag
		codec continuity.Codec
	}{
		{continuity.TagAirPrint, continuity.Codec{Name: "airprint", Decode: decodePrint, Encode: encodePrint}},
		{continuity.TagAirDrop, continuity.Codec{Name: "airdrop", Decode: decodeFileShare, Encode: encodeFileShare}},
		{continuity.TagAirPlayTarget, continuity.Codec{Name: "airplay-target", Decode: decodeStreamingTarget, Encode: encodeStreaming}},
		{continuity.TagAirPlaySource, continuity.Codec{Name: "airplay-source", Decode: decodeStreamingSource, Encode: encodeStreaming}},
		{continuity.TagFindMy, continuity.Codec{Name: "findmy", Decode: decodeTracking, Encode: encodeTracking}},
	}
	for _, c := range codecs {
		if err := reg.Register(c.tag, c.codec); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a sealed registry with every supported family.
func NewRegistry() *continuity.Registry {
	reg := continuity.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	reg.Seal()
	return reg
}
