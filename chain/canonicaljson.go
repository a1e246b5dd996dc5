package chain

import (
	"bytes"
	"encoding/json"
)

// canonicalJSON re-serializes v with sorted object keys, compact
// separators and no HTML escaping, so that the same logical value always
// hashes the same way regardless of which struct tags or map iteration
// order produced it on the way in. It works by round-tripping through a
// generic interface{}: encoding/json already emits map keys in sorted
// order, so decoding into map[string]any/[]any and re-encoding is enough
// to erase the original key order.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber() // preserve 64-bit integers exactly; interface{} would widen them to float64
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
