package jsonx

import "github.com/goccy/go-json"

// Thin wrapper so the ledger and the stream decoder share one JSON implementation.
var (
	Marshal       = json.Marshal
	MarshalIndent = json.MarshalIndent
	Unmarshal     = json.Unmarshal
	Valid         = json.Valid
)

type RawMessage = json.RawMessage
