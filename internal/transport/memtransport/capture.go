package memtransport

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/continuityctl/internal/continuity"
	"github.com/danmuck/continuityctl/internal/transport"
)

var ErrCaptureLine = errors.New("memtransport: invalid capture line")

// LoadCaptureFile reads a capture file. See ParseCapture.
func LoadCaptureFile(path string) ([]transport.RawAdvertisement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCapture(f, time.Now)
}

// ParseCapture reads lines of `ADDR RSSI HEX` where HEX is manufacturer data
// including the vendor id. Blank lines and lines starting with # are skipped.
func ParseCapture(r io.Reader, clock func() time.Time) ([]transport.RawAdvertisement, error) {
	if clock == nil {
		clock = time.Now
	}
	var out []transport.RawAdvertisement
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.Fields(text)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: line %d: expected 3 fields, got %d", ErrCaptureLine, line, len(parts))
		}
		addr, err := continuity.ParseAddress(parts[0])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCaptureLine, line, err)
		}
		rssi, err := strconv.ParseInt(parts[1], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: rssi %q", ErrCaptureLine, line, parts[1])
		}
		data, err := hex.DecodeString(parts[2])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: payload: %v", ErrCaptureLine, line, err)
		}
		out = append(out, transport.RawAdvertisement{
			Address:          addr,
			RSSI:             int16(rssi),
			ManufacturerData: data,
			Timestamp:        clock(),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
