// Package api defines the settlement.v1 Connect services: request and
// response messages, procedure names, handler constructors and clients.
//
// Messages are plain Go structs carried by a JSON codec, so any Connect or
// plain HTTP client can call the services with
//
//	POST /settlement.v1.BatchService/Claim
//	Content-Type: application/json
package api

import (
	"encoding/json"

	"connectrpc.com/connect"
)

const codecName = "json"

// Codec marshals messages with encoding/json.
type Codec struct{}

var _ connect.Codec = Codec{}

func (Codec) Name() string { return codecName }

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	return json.Unmarshal(data, msg)
}

func handlerOptions(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
}

func clientOptions(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
}
