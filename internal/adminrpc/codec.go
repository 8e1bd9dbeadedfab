// Package adminrpc exposes the same read-only introspection surface as
// internal/admin over gRPC, for cmd/greyctl and other structured
// clients. It deliberately avoids a protoc-generated stub: grpc-go's
// pluggable encoding.Codec lets the wire format be plain JSON over
// interface{} values, so the real google.golang.org/grpc transport,
// framing, and service dispatch run unmodified without requiring
// generated proto.Message types.
package adminrpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec by
// marshaling whatever Go value the handler passes it as JSON. Every
// request/response type in this package is a plain struct (see
// service.go), so no protobuf descriptors are needed.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("adminrpc: marshal: %w", err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("adminrpc: unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
