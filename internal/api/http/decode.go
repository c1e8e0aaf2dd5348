package http

import (
	"bytes"
	"encoding/json"
)

// oneOrMany accepts a JSON object or an array of them.
type oneOrMany[T any] struct {
	items []T
}

func (o *oneOrMany[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, &o.items)
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	o.items = []T{one}
	return nil
}
