package domain

import (
	"errors"
	"fmt"
)

// MalformedPayloadError reports a response body that is not valid JSON.
type MalformedPayloadError struct {
	Err error
}

func (e *MalformedPayloadError) Error() string {
	return "malformed payload: " + e.Err.Error()
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// PayloadTypeError reports a valid JSON payload of an unexpected shape.
// Kind names the JSON type found and Snippet holds the start of the value.
type PayloadTypeError struct {
	Kind    string
	Snippet string
	Err     error
}

func (e *PayloadTypeError) Error() string {
	return fmt.Sprintf("unexpected payload type %s, want array of records: %s", e.Kind, e.Snippet)
}

func (e *PayloadTypeError) Unwrap() error { return e.Err }

// errNotExactLayout marks a timestamp that parses but carries extra
// precision, such as fractional seconds.
var errNotExactLayout = errors.New("extra characters after seconds")

// TimestampError reports a timestamp that does not match TimeLayout.
type TimestampError struct {
	ID    int64
	Field string
	Value string
	Err   error
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("tweet %d: %s %q does not match %s", e.ID, e.Field, e.Value, TimeLayout)
}

func (e *TimestampError) Unwrap() error { return e.Err }

// InvalidRecordError reports a record object that cannot become a Tweet.
type InvalidRecordError struct {
	ID     int64
	Reason string
}

func (e *InvalidRecordError) Error() string {
	if e.ID == 0 {
		return "invalid record: " + e.Reason
	}
	return fmt.Sprintf("invalid record %d: %s", e.ID, e.Reason)
}
