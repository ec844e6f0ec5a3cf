// Package compress implements per-field threshold-based compression: a
// field whose serialized size meets a threshold is replaced by a
// compressed byte-string under a synthesized __compressed envelope.
// Decompression is transparent; queries and index keys always operate on
// the decompressed view.
package compress

import (
	"encoding/json"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/knirvcorp/embeddb/internal/value"
)

// Options configures the compressor's threshold policy.
type Options struct {
	// ThresholdBytes is the minimum canonical-JSON size of a field value
	// before compression is attempted.
	ThresholdBytes int
	// Fields restricts compression to a named subset; empty means every
	// field is eligible.
	Fields []string
}

func defaultOptions() Options { return Options{ThresholdBytes: 256} }

// Compressor applies/reverses the envelope transform on Document Objects.
type Compressor struct {
	opts    Options
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	mu      sync.Mutex
}

// New constructs a Compressor. The zstd encoder/decoder pair is shared
// and guarded by a mutex since zstd.Encoder/Decoder are not safe for
// concurrent EncodeAll/DecodeAll calls sharing internal buffers across
// goroutines in all configurations.
func New(opts Options) (*Compressor, error) {
	if opts.ThresholdBytes <= 0 {
		opts.ThresholdBytes = defaultOptions().ThresholdBytes
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Compressor{opts: opts, encoder: enc, decoder: dec}, nil
}

func (c *Compressor) eligible(field string) bool {
	if len(c.opts.Fields) == 0 {
		return true
	}
	for _, f := range c.opts.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Compress scans doc's top-level fields and replaces each eligible,
// over-threshold field with a compressed byte string, recording the
// transform in a __compressed envelope. Fields for which compression does
// not shrink the serialized value are left uncompressed.
func (c *Compressor) Compress(doc value.Value) value.Value {
	if doc.Kind() != value.Object {
		return doc
	}
	var compressedFields []string
	originalSize := 0
	out := doc
	for _, key := range doc.Keys() {
		if key == value.FieldCompressed || !c.eligible(key) {
			continue
		}
		fieldVal, _ := doc.Get(key)
		raw := []byte(value.CanonicalJSON(fieldVal))
		if len(raw) < c.opts.ThresholdBytes {
			continue
		}
		c.mu.Lock()
		packed := c.encoder.EncodeAll(raw, nil)
		c.mu.Unlock()
		if len(packed) >= len(raw) {
			continue
		}
		out = out.Set(key, value.NewString(string(packed)))
		compressedFields = append(compressedFields, key)
		originalSize += len(raw)
	}
	if len(compressedFields) == 0 {
		return doc
	}
	envelope := value.NewObject().
		Set("fields", stringsToValue(compressedFields)).
		Set("originalSize", value.NewNumber(float64(originalSize)))
	return out.Set(value.FieldCompressed, envelope)
}

// Decompress reverses Compress, restoring every field named in the
// __compressed envelope to its original Value and removing the envelope.
func (c *Compressor) Decompress(doc value.Value) value.Value {
	envelope, ok := doc.Get(value.FieldCompressed)
	if !ok || envelope.Kind() != value.Object {
		return doc
	}
	fieldsVal, _ := envelope.Get("fields")
	out := doc.Delete(value.FieldCompressed)
	if fieldsVal.Kind() != value.Array {
		return out
	}
	for _, fv := range fieldsVal.AsArray() {
		if fv.Kind() != value.String {
			continue
		}
		key := fv.AsString()
		packed, ok := out.Get(key)
		if !ok || packed.Kind() != value.String {
			continue
		}
		c.mu.Lock()
		raw, err := c.decoder.DecodeAll([]byte(packed.AsString()), nil)
		c.mu.Unlock()
		if err != nil {
			continue
		}
		restored := jsonStringToValue(string(raw))
		out = out.Set(key, restored)
	}
	return out
}

func stringsToValue(ss []string) value.Value {
	items := make([]value.Value, len(ss))
	for i, s := range ss {
		items[i] = value.NewString(s)
	}
	return value.NewArray(items...)
}

// jsonStringToValue decodes a canonical-JSON fragment produced by
// value.CanonicalJSON back into a Value.
func jsonStringToValue(s string) value.Value {
	var raw any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return value.NewNull()
	}
	return value.FromJSON(raw)
}
