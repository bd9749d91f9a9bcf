// Package codec registers a JSON-based grpc/encoding.Codec under the
// "proto" content-subtype, the one google.golang.org/grpc uses by default
// when a call sets no codec explicitly. This lets pkg/transport/ankpb's
// hand-authored message structs ride real gRPC streams without requiring
// the protobuf compiler: every Envelope is marshaled with encoding/json
// instead of proto wire format. Importing this package for its side effect
// (blank or otherwise) is required before dialing or serving
// AgentConnect.
package codec

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const Name = "proto"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return Name
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
