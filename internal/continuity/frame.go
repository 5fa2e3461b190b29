package continuity

// Frame is the ordered record sequence of one manufacturer-data payload.
type Frame struct {
	Records []Record
}

// Len is the encoded payload size.
func (f Frame) Len() int {
	n := 0
	for _, rec := range f.Records {
		n += rec.Len()
	}
	return n
}

// Malformed lists per-record errors in frame order.
func (f Frame) Malformed() []error {
	var errs []error
	for _, rec := range f.Records {
		if rec.Err != nil {
			errs = append(errs, rec.Err)
		}
	}
	return errs
}

// DecodeFrame decodes records until payload is exhausted. On truncation the
// records decoded so far are returned with ErrTruncatedRecord.
func (r *Registry) DecodeFrame(payload []byte) (Frame, error) {
	frame := Frame{Records: make([]Record, 0, 2)}
	i := 0
	for i < len(payload) {
		rec, n, err := r.DecodeRecord(payload[i:])
		if err != nil {
			return frame, err
		}
		frame.Records = append(frame.Records, rec)
		i += n
	}
	return frame, nil
}

func (r *Registry) EncodeFrame(f Frame) ([]byte, error) {
	out := make([]byte, 0, f.Len())
	for _, rec := range f.Records {
		var err error
		out, err = r.AppendRecord(out, rec)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
