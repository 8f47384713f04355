// Package serializer implements the Serializer collaborator (spec.md §4.1):
// a byte-blob codec with a configurable wire format and a DateTime
// normalization policy applied on every deserialize.
package serializer

import (
	"encoding/json"
	"errors"

	"github.com/lacunalabs/blobcache/pkg/cacheerr"
	"go.mongodb.org/mongo-driver/bson"
)

var errUnmarshalBothFormats = errors.New("payload did not parse as json or bson")

// Format identifies the wire encoding a Serializer writes with.
type Format int

const (
	FormatJSON Format = iota
	FormatBSON
)

func (f Format) String() string {
	if f == FormatBSON {
		return "bson"
	}
	return "json"
}

// DateTimeKind is the normalization policy applied to every deserialized
// time.Time value.
type DateTimeKind int

const (
	// KindNone performs no normalization; instants are returned as decoded.
	KindNone DateTimeKind = iota
	// KindUTC converts every instant to UTC.
	KindUTC
	// KindLocal converts every instant to the process's local zone.
	KindLocal
	// KindUnspecified re-tags the instant's wall-clock fields without
	// converting the represented moment (no offset math).
	KindUnspecified
)

// Options configures a Serializer (spec.md §4.1, §6).
type Options struct {
	Format             Format
	ForcedDateTimeKind DateTimeKind
}

// Serializer converts typed values to and from byte blobs, wrapping every
// payload as {"Value": T} and normalizing DateTime fields on the way out.
type Serializer struct {
	format Format
	kind   DateTimeKind
}

// New builds a Serializer from opts.
func New(opts Options) *Serializer {
	return &Serializer{format: opts.Format, kind: opts.ForcedDateTimeKind}
}

// Format reports the codec this serializer writes with.
func (s *Serializer) Format() Format { return s.format }

// Marshal encodes v with the configured format. Callers typically go through
// the generic Serialize helper instead, which also applies the {"Value": T}
// envelope.
func (s *Serializer) Marshal(v any) ([]byte, error) {
	switch s.format {
	case FormatBSON:
		data, err := bson.Marshal(v)
		if err != nil {
			return nil, cacheerr.SerializationFailure(FormatBSON.String(), 0, err)
		}
		return data, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, cacheerr.SerializationFailure(FormatJSON.String(), 0, err)
		}
		return data, nil
	}
}

// Unmarshal decodes data into v. Per spec.md §4.1 it MUST accept bytes
// written by a compatible peer in the other wire format: it classifies the
// byte prefix, attempts the classified codec first, and falls back to the
// other codec on parse failure.
func (s *Serializer) Unmarshal(data []byte, v any) error {
	primary := classify(data)
	secondary := FormatBSON
	if primary == FormatBSON {
		secondary = FormatJSON
	}

	if err := unmarshalWith(primary, data, v); err == nil {
		return nil
	}
	if err := unmarshalWith(secondary, data, v); err == nil {
		return nil
	}
	return cacheerr.SerializationFailure(primary.String(), len(data), errUnmarshalBothFormats)
}

func unmarshalWith(format Format, data []byte, v any) error {
	if format == FormatBSON {
		return bson.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

// classify probes the byte prefix to guess the wire format: JSON text always
// starts with '{' or '[' (optionally preceded by whitespace); BSON documents
// open with a 4-byte little-endian length field whose first byte is rarely
// also a valid JSON opener.
func classify(data []byte) Format {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			return FormatJSON
		default:
			return FormatBSON
		}
	}
	return FormatJSON
}
