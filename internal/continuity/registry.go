package continuity

import (
	"fmt"
	"sort"
)

// Codec decodes and encodes one record payload.
type Codec struct {
	Name   string
	Decode func(payload []byte) (Message, error)
	Encode func(m Message) ([]byte, error)
}

// Registry maps tags to codecs.
//
// It is populated during construction and sealed before concurrent use.
// Lookups take no lock; Seal turns later Register calls into errors.
type Registry struct {
	items  map[Tag]Codec
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[Tag]Codec)}
}

// Register installs codec for tag.
func (r *Registry) Register(tag Tag, codec Codec) error {
	if r.sealed {
		return ErrRegistrySealed
	}
	if codec.Decode == nil || codec.Encode == nil {
		return fmt.Errorf("%w: tag=%s decode and encode are required", ErrInvalidCodec, tag)
	}
	if _, ok := r.items[tag]; ok {
		return fmt.Errorf("%w: %s", ErrTagRegistered, tag)
	}
	if codec.Name == "" {
		codec.Name = tag.String()
	}
	r.items[tag] = codec
	return nil
}

// Lookup returns the codec for tag. A nil registry knows no tags.
func (r *Registry) Lookup(tag Tag) (Codec, bool) {
	if r == nil {
		return Codec{}, false
	}
	codec, ok := r.items[tag]
	return codec, ok
}

// Tags returns registered tags in ascending order.
func (r *Registry) Tags() []Tag {
	tags := make([]Tag, 0, len(r.items))
	for tag := range r.items {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

func (r *Registry) Seal() {
	r.sealed = true
}

func (r *Registry) Sealed() bool {
	return r.sealed
}
