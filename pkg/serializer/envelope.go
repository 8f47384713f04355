package serializer

// envelope is the on-wire wrapper every typed value is stored in, so a nil
// value is distinguishable from "absent" and so a single store can mix
// types (spec.md §4.1).
type envelope[T any] struct {
	Value T `json:"Value" bson:"Value"`
}

// Serialize encodes v wrapped as {"Value": v} using s's configured format.
func Serialize[T any](s *Serializer, v T) ([]byte, error) {
	return s.Marshal(envelope[T]{Value: v})
}

// Deserialize decodes data into a T, accepting both the wrapped envelope
// shape and a bare T payload (spec.md §4.1), and applies s's configured
// ForcedDateTimeKind normalization to every time.Time field found in the
// result.
func Deserialize[T any](s *Serializer, data []byte) (T, error) {
	if s.hasEnvelope(data) {
		var wrapped envelope[T]
		if err := s.Unmarshal(data, &wrapped); err == nil {
			s.normalize(&wrapped.Value)
			return wrapped.Value, nil
		}
	}

	var bare T
	if err := s.Unmarshal(data, &bare); err != nil {
		return bare, err
	}
	s.normalize(&bare)
	return bare, nil
}

// hasEnvelope reports whether data decodes as a document carrying a "Value"
// key, distinguishing the wrapped shape from a bare payload of the same
// wire format.
func (s *Serializer) hasEnvelope(data []byte) bool {
	var probe map[string]any
	if err := s.Unmarshal(data, &probe); err != nil {
		return false
	}
	_, ok := probe["Value"]
	return ok
}
