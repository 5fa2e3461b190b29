package sink

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/danmuck/continuityctl/internal/continuity"
	"github.com/danmuck/continuityctl/internal/continuity/messages"
	"github.com/danmuck/continuityctl/internal/engine"
	logs "github.com/danmuck/continuityctl/internal/logging"
)

// defaultRegistry renders events that do not carry their decode registry.
var defaultRegistry = messages.NewRegistry()

// Document is the JSON form of an event shared by every sink.
type Document struct {
	Address   string           `json:"address"`
	RSSI      int16            `json:"rssi"`
	Timestamp int64            `json:"timestamp_ms"`
	Vendor    string           `json:"vendor"`
	Records   []RecordDocument `json:"records"`
}

type RecordDocument struct {
	Tag       string         `json:"tag"`
	Family    string         `json:"family,omitempty"`
	Payload   string         `json:"payload,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Malformed string         `json:"malformed,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func NewDocument(ev continuity.Event) Document {
	doc := Document{
		Address:   ev.Address.String(),
		RSSI:      ev.RSSI,
		Timestamp: ev.Timestamp.UnixMilli(),
		Vendor:    fmt.Sprintf("0x%04x", ev.Vendor),
		Records:   make([]RecordDocument, 0, len(ev.Frame.Records)),
	}
	reg := ev.Registry
	if reg == nil {
		reg = defaultRegistry
	}
	for _, rec := range ev.Frame.Records {
		rd := RecordDocument{Tag: fmt.Sprintf("0x%02x", uint8(rec.Tag))}
		if fam, ok := rec.Tag.Family(); ok {
			rd.Family = fam
		}
		if b, err := reg.EncodeRecord(rec); err == nil {
			rd.Payload = hex.EncodeToString(b[2:])
		} else {
			rd.Error = err.Error()
			logs.Warnf("sink.NewDocument address=%s tag=%s err=%v", ev.Address, rec.Tag, err)
		}
		if rec.Err != nil {
			rd.Malformed = rec.Err.Error()
		} else {
			rd.Fields = messages.Fields(rec.Message)
		}
		// The first six key bytes travel as the sender address.
		if t, ok := rec.Message.(*messages.Tracking); ok && rec.Err == nil {
			if rd.Fields == nil {
				rd.Fields = make(map[string]any)
			}
			key := t.PublicKey(ev.Address)
			rd.Fields["public_key"] = hex.EncodeToString(key[:])
		}
		doc.Records = append(doc.Records, rd)
	}
	return doc
}

// Family is the family of the first record, or "unknown".
func (d Document) Family() string {
	if len(d.Records) == 0 || d.Records[0].Family == "" {
		return "unknown"
	}
	return d.Records[0].Family
}

func EncodeEvent(ev continuity.Event) ([]byte, error) {
	return json.Marshal(NewDocument(ev))
}

type errorDocument struct {
	Address string `json:"address"`
	Payload string `json:"payload"`
	Error   string `json:"error"`
}

func encodeDecodeError(de *engine.DecodeError) ([]byte, error) {
	return json.Marshal(errorDocument{
		Address: de.Address.String(),
		Payload: hex.EncodeToString(de.Payload),
		Error:   de.Err.Error(),
	})
}
