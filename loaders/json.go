// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package loaders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mdhender/salesingest/model"
	"github.com/spf13/afero"
)

// LoadJSON decodes either a JSON array of objects or a stream of newline-delimited objects.
// Columns appear in the order their keys are first seen; keys missing from a row are NULL.
// Nested objects and arrays are kept as their JSON text.
func LoadJSON(ctx context.Context, fs afero.Fs, path string) (*model.RowSet, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, decodeError(path, model.FormatJSON, err)
	}
	rs, err := decodeJSON(ctx, data)
	if err != nil {
		return nil, decodeError(path, model.FormatJSON, err)
	}
	return rs, nil
}

// jsonObject is one decoded object with its keys in document order.
type jsonObject struct {
	keys   []string
	values map[string]any
}

func decodeJSON(ctx context.Context, data []byte) (*model.RowSet, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty file")
	} else if err != nil {
		return nil, err
	}

	var objects []jsonObject
	switch tok {
	case json.Delim('['):
		for dec.More() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if tok, err = dec.Token(); err != nil {
				return nil, err
			} else if tok != json.Delim('{') {
				return nil, fmt.Errorf("element %d: want object, got %v", len(objects)+1, tok)
			}
			obj, err := decodeObject(dec)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", len(objects)+1, err)
			}
			objects = append(objects, obj)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
	case json.Delim('{'):
		for {
			obj, err := decodeObject(dec)
			if err != nil {
				return nil, fmt.Errorf("object %d: %w", len(objects)+1, err)
			}
			objects = append(objects, obj)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			tok, err = dec.Token()
			if errors.Is(err, io.EOF) {
				break
			} else if err != nil {
				return nil, err
			} else if tok != json.Delim('{') {
				return nil, fmt.Errorf("object %d: want object, got %v", len(objects)+1, tok)
			}
		}
	default:
		return nil, fmt.Errorf("want array or object, got %v", tok)
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after document")
	}

	rs := &model.RowSet{}
	index := make(map[string]int)
	for _, obj := range objects {
		for _, key := range obj.keys {
			if _, ok := index[key]; !ok {
				index[key] = len(rs.Columns)
				rs.Columns = append(rs.Columns, model.Column{Name: key})
			}
		}
	}
	for _, obj := range objects {
		row := make([]any, len(rs.Columns))
		for key, v := range obj.values {
			row[index[key]] = v
		}
		if err := rs.Append(row); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

// decodeObject reads the members of an object whose opening brace was already consumed.
func decodeObject(dec *json.Decoder) (jsonObject, error) {
	obj := jsonObject{values: make(map[string]any)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return obj, err
		}
		key, ok := tok.(string)
		if !ok {
			return obj, fmt.Errorf("want key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return obj, fmt.Errorf("%q: %w", key, err)
		}
		v, err := jsonScalar(raw)
		if err != nil {
			return obj, fmt.Errorf("%q: %w", key, err)
		}
		if _, dup := obj.values[key]; !dup {
			obj.keys = append(obj.keys, key)
		}
		obj.values[key] = v
	}
	// closing brace
	if _, err := dec.Token(); err != nil {
		return obj, err
	}
	return obj, nil
}

// jsonScalar converts a raw JSON value into a row-set cell.
func jsonScalar(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	switch raw[0] {
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}
		return buf.String(), nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		return x.Float64()
	case nil, bool, string:
		return x, nil
	}
	return nil, fmt.Errorf("unexpected value %s", raw)
}
