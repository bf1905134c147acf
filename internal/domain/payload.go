package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is the parsed form of one raw response body. It is either an
// ErrorPayload or a RecordBatch; the shape is decided once by ParsePayload.
type Payload interface {
	isPayload()
}

// ErrorPayload is an {"error": {...}} object reported by the source.
type ErrorPayload struct {
	Message string
}

// RecordBatch is a JSON array of tweet records.
type RecordBatch struct {
	Records []RawTweet
}

func (ErrorPayload) isPayload() {}
func (RecordBatch) isPayload()  {}

// ParsePayload decodes raw and classifies it.
//
// Errors:
//   - *MalformedPayloadError when raw is not valid JSON.
//   - *PayloadTypeError when raw is valid JSON but neither an error object
//     nor an array of records.
func ParsePayload(raw string) (Payload, error) {
	data := bytes.TrimSpace([]byte(raw))
	if !json.Valid(data) {
		// Decode once more to surface the decoder's own message and offset.
		var v any
		err := json.Unmarshal(data, &v)
		if err == nil {
			err = fmt.Errorf("invalid JSON")
		}
		return nil, &MalformedPayloadError{Err: err}
	}

	switch data[0] {
	case '[':
		var recs []RawTweet
		if err := json.Unmarshal(data, &recs); err != nil {
			// Valid JSON array whose elements are not record objects.
			return nil, &PayloadTypeError{Kind: "array of non-records", Snippet: snippet(data), Err: err}
		}
		return RecordBatch{Records: recs}, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, &MalformedPayloadError{Err: err}
		}
		msg, ok := obj["error"]
		if !ok {
			return nil, &PayloadTypeError{Kind: "object", Snippet: snippet(data)}
		}
		return ErrorPayload{Message: errorMessage(msg)}, nil
	default:
		return nil, &PayloadTypeError{Kind: jsonKind(data[0]), Snippet: snippet(data)}
	}
}

// errorMessage extracts the message from the "error" member, which is either
// {"message": "..."} or a bare string. Other shapes are returned verbatim.
func errorMessage(raw json.RawMessage) string {
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Message != "" {
		return nested.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func jsonKind(b byte) string {
	switch b {
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

const maxSnippet = 80

func snippet(data []byte) string {
	if len(data) <= maxSnippet {
		return string(data)
	}
	return string(data[:maxSnippet]) + "…"
}
