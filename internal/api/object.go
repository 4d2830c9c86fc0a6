package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Object is a JSON object that remembers the order its keys arrived in.
// The backend's free-form payloads (quota.external, diagnostics) are listed
// to the user in that order.
type Object struct {
	keys   []string
	values map[string]json.RawMessage
}

// ObjectOf builds an Object from alternating key/value pairs; values are
// JSON-encoded. It is meant for tests and fixtures.
func ObjectOf(pairs ...any) (Object, error) {
	var o Object
	if len(pairs)%2 != 0 {
		return o, fmt.Errorf("ObjectOf: odd number of arguments")
	}
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return o, fmt.Errorf("ObjectOf: key %d is %T, want string", i/2, pairs[i])
		}
		raw, err := json.Marshal(pairs[i+1])
		if err != nil {
			return o, err
		}
		o.Set(key, raw)
	}
	return o, nil
}

func (o *Object) Set(key string, raw json.RawMessage) {
	if o.values == nil {
		o.values = map[string]json.RawMessage{}
	}
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = raw
}

func (o Object) Len() int { return len(o.keys) }

func (o Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

func (o Object) Raw(key string) (json.RawMessage, bool) {
	raw, ok := o.values[key]
	return raw, ok
}

// String returns the value of key when it is a JSON string.
func (o Object) String(key string) (string, bool) {
	raw, ok := o.values[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Truthy mirrors the loose presence checks the dashboard relies on: the key
// exists and is neither null, false, 0 nor "".
func (o Object) Truthy(key string) bool {
	raw, ok := o.values[key]
	if !ok {
		return false
	}
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}

// Display renders the value of key for humans: strings verbatim, anything
// else as compact JSON.
func (o Object) Display(key string) string {
	raw, ok := o.values[key]
	if !ok {
		return ""
	}
	if s, isString := o.String(key); isString {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}

func (o *Object) UnmarshalJSON(data []byte) error {
	o.keys = nil
	o.values = nil
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		o.Set(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		buf.Write(o.values[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML keeps key order when reports are printed as YAML.
func (o Object) MarshalYAML() (any, error) {
	return objectNode(o)
}

func objectNode(o Object) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, key := range o.keys {
		valueNode, err := rawNode(o.values[key])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			valueNode,
		)
	}
	return node, nil
}

func rawNode(raw json.RawMessage) (*yaml.Node, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var nested Object
		if err := json.Unmarshal(trimmed, &nested); err != nil {
			return nil, err
		}
		return objectNode(nested)
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range items {
			child, err := rawNode(item)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, child)
		}
		return seq, nil
	}
	var scalar any
	if err := json.Unmarshal(trimmed, &scalar); err != nil {
		return nil, err
	}
	node := &yaml.Node{}
	if err := node.Encode(scalar); err != nil {
		return nil, err
	}
	return node, nil
}

// DecodeObject re-decodes an Object into a typed struct.
func DecodeObject[T any](o Object) (T, error) {
	buf, err := o.MarshalJSON()
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](buf)
}

// Decode unmarshals a raw payload into T.
func Decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
