package grpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// decodeStruct fills out from the JSON form of in. Unknown fields are ignored.
func decodeStruct(in *structpb.Struct, out any) error {
	if in == nil {
		return nil
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// encodeStruct converts v to a Struct through its JSON form, so json tags on
// kernel types define the wire shape.
func encodeStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

// stringField returns a top-level string field, or "".
func stringField(in *structpb.Struct, name string) string {
	if in == nil {
		return ""
	}
	if v, ok := in.GetFields()[name]; ok {
		return v.GetStringValue()
	}
	return ""
}

// withoutFields returns a shallow copy of in minus the named fields, for
// fields that are decoded by hand.
func withoutFields(in *structpb.Struct, names ...string) *structpb.Struct {
	if in == nil {
		return nil
	}
	out := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(in.GetFields()))}
	for k, v := range in.GetFields() {
		out.Fields[k] = v
	}
	for _, name := range names {
		delete(out.Fields, name)
	}
	return out
}
