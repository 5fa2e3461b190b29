package messages

import (
	"encoding/hex"
	"fmt"

	"github.com/danmuck/continuityctl/internal/continuity"
)

// Fields renders the decoded fields of m for logs and event documents.
// Digests are rendered as their wire bytes only.
func Fields(m continuity.Message) map[string]any {
	switch v := m.(type) {
	case *FileShare:
		return map[string]any{
			"version": v.Version,
			"appleid": v.AppleID.String(),
			"phone":   v.Phone.String(),
			"email":   v.Email.String(),
			"email2":  v.Email2.String(),
			"flags":   hexByte(v.Flags),
		}
	case *Streaming:
		out := map[string]any{"role": v.Role.String(), "flags": hexByte(v.Flags)}
		if v.Role == RoleTarget {
			out["seed"] = hexByte(v.Seed)
			if v.Addr.IsValid() {
				out["ip"] = v.Addr.String()
			}
		}
		return out
	case *Print:
		return map[string]any{
			"address_type":  hexByte(v.AddressType),
			"resource_path": hexByte(v.ResourcePath),
			"security":      hexByte(v.Security),
			"port":          v.Port,
			"ip":            v.Address.Unmap().String(),
			"power":         v.Power,
		}
	case *Tracking:
		return map[string]any{
			"status":       hexByte(v.Status),
			"battery":      v.Battery().String(),
			"key_fragment": hex.EncodeToString(v.KeyFragment[:]),
			"key_bits":     v.KeyBits,
			"hint":         hexByte(v.Hint),
		}
	case *continuity.Unknown:
		return map[string]any{"data": hex.EncodeToString(v.Data)}
	default:
		return nil
	}
}

func hexByte(b uint8) string {
	return fmt.Sprintf("0x%02x", b)
}
