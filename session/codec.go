package session

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

//Binary segments inside otherwise JSON-shaped session state are stored as
//explicit {"type":"Buffer","data":<base64>} pairs so that byte arrays survive
//the round trip losslessly at any nesting depth.

const bufferTag = "Buffer"

//NormalizeIdentifier makes an identifier safe for use as a storage key or
//path segment by replacing slashes and colons.
func NormalizeIdentifier(identifier string) string {
	identifier = strings.ReplaceAll(identifier, "/", "_")
	return strings.ReplaceAll(identifier, ":", "_")
}

//Encode serializes a session state tree, tagging every []byte leaf.
func Encode(value interface{}) ([]byte, error) {
	return json.Marshal(tagBuffers(value))
}

//Decode restores a session state tree, turning tagged pairs back into []byte.
func Decode(data []byte) (interface{}, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return untagBuffers(raw), nil
}

func tagBuffers(value interface{}) interface{} {
	switch v := value.(type) {
	case []byte:
		return map[string]interface{}{
			"type": bufferTag,
			"data": base64.StdEncoding.EncodeToString(v),
		}
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = tagBuffers(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = tagBuffers(item)
		}
		return out
	default:
		return v
	}
}

func untagBuffers(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		if b, ok := asBuffer(v); ok {
			return b
		}
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = untagBuffers(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = untagBuffers(item)
		}
		return out
	default:
		return v
	}
}

func asBuffer(m map[string]interface{}) ([]byte, bool) {
	if len(m) != 2 {
		return nil, false
	}
	if tag, ok := m["type"].(string); !ok || tag != bufferTag {
		return nil, false
	}
	data, ok := m["data"].(string)
	if !ok {
		return nil, false
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, false
	}
	return decoded, true
}
