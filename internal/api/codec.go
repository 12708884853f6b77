package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// CodecName is the content-subtype LogIntelligence calls are carried on.
// Clients select it with grpc.CallContentSubtype(CodecName).
const CodecName = "json"

// JSONCodec marshals plain Go message structs as JSON. Protobuf messages,
// such as the health service's, go through protojson.
type JSONCodec struct{}

func init() {
	encoding.RegisterCodec(JSONCodec{})
}

// Marshal implements encoding.Codec.
func (JSONCodec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return protojson.Marshal(m)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json codec marshal %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal implements encoding.Codec.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, m)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json codec unmarshal %T: %w", v, err)
	}
	return nil
}

// Name implements encoding.Codec.
func (JSONCodec) Name() string {
	return CodecName
}
