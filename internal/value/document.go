package value

import "github.com/google/uuid"

// Reserved field names carrying metadata invisible to the query/update
// surface. toJSON strips these before handing a document to a caller that
// asked for the plain view.
const (
	FieldID          = "id"
	FieldCompressed  = "__compressed"
	FieldVector      = "_vector"
	FieldTimestamp   = "_timestamp"
	FieldPeerID      = "_peerId"
	FieldDeleted     = "_deleted"
)

var reservedEnvelopeFields = []string{FieldCompressed, FieldVector, FieldTimestamp, FieldPeerID, FieldDeleted}

// Document is an Object value carrying a mandatory id field.
type Document struct {
	v Value
}

// NewDocument wraps an Object value as a Document, assigning a fresh id
// if one is not already present.
func NewDocument(v Value) Document {
	if v.Kind() != Object {
		panic("value: NewDocument requires an Object")
	}
	if _, ok := v.Get(FieldID); !ok {
		v = v.Set(FieldID, NewString(GenerateID()))
	}
	return Document{v: v}
}

// GenerateID returns a collision-resistant random identifier.
func GenerateID() string {
	return uuid.NewString()
}

// ID returns the document's primary key as a Value (String or Number).
func (d Document) ID() Value {
	v, _ := d.v.Get(FieldID)
	return v
}

// IDString renders the ID as a string regardless of underlying kind,
// for use as a map key in indexes and the collection's document table.
func (d Document) IDString() string {
	id := d.ID()
	switch id.Kind() {
	case String:
		return id.AsString()
	case Number:
		return formatNumber(id.AsNumber())
	default:
		return CanonicalJSON(id)
	}
}

// Value returns the underlying Object, including any reserved envelopes.
func (d Document) Value() Value { return d.v }

// Get reads a field by dotted-free single key from the raw stored value
// (envelopes included). Most callers should go through internal/path.
func (d Document) Get(key string) (Value, bool) { return d.v.Get(key) }

// WithValue returns a Document wrapping a new Object, preserving the id.
func WithValue(v Value) Document { return Document{v: v} }

// ToJSONView strips reserved envelope fields, returning the Object a
// query or caller should see.
func (d Document) ToJSONView() Value {
	out := d.v
	for _, f := range reservedEnvelopeFields {
		if _, ok := out.Get(f); ok {
			out = out.Delete(f)
		}
	}
	return out
}

// IsDeleted reports whether the document carries a truthy _deleted
// tombstone marker.
func (d Document) IsDeleted() bool {
	v, ok := d.v.Get(FieldDeleted)
	return ok && v.Kind() == Bool && v.AsBool()
}

// VectorClock extracts the _vector envelope as a string->int64 map
// suitable for internal/clock.VectorClock, or nil if absent.
func (d Document) VectorClock() map[string]int64 {
	v, ok := d.v.Get(FieldVector)
	if !ok || v.Kind() != Object {
		return nil
	}
	out := make(map[string]int64, v.Len())
	for _, k := range v.Keys() {
		e, _ := v.Get(k)
		if e.Kind() == Number {
			out[k] = int64(e.AsNumber())
		}
	}
	return out
}
