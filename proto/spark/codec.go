// Package spark holds the wire messages and client for the Signing Operator
// RPC surface. The messages mirror spark.proto field for field and are
// encoded in the protobuf binary format by Codec.
package spark

import "google.golang.org/grpc"

// CodecName is the content-subtype the messages are sent under.
const CodecName = "proto"

// Codec is a grpc codec over Marshal and Unmarshal.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	return Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return Unmarshal(data, v)
}

func (Codec) Name() string {
	return CodecName
}

// CallOption selects Codec for a call.
func CallOption() grpc.CallOption {
	return grpc.ForceCodec(Codec{})
}
