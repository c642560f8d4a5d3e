package registry

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// jsonSchema is the common-case Schema: unmarshal raw JSON into a
// loosely-typed value, then use mapstructure to decode it into a
// concrete Go type, and check that a handler's output is exactly that
// type. Every job type cmd/reefworker registers uses JSONSchema;
// semantic checks beyond decoding (e.g. bounds merging in
// internal/handlers) run inside the handlers themselves.
//
// This mirrors the teacher's own loosely-typed-map decode idiom
// (_examples/diffeo-go-coordinate/jobserver/utils.go's decode helper,
// coordinate/helpers.go): a job's raw payload there is always a
// string-keyed map decoded through mapstructure.NewDecoder against a
// typed Result, never encoding/json directly against a known struct.
// TagName is set to "json" so the existing `json:"..."` struct tags on
// job input/output types double as the mapstructure field mapping.
type jsonSchema[T any] struct{}

// JSONSchema returns a Schema backed by mapstructure for type T. T
// should be a struct (or pointer-free value type); handlers receive
// and return T by value through the registry's interface{} plumbing.
func JSONSchema[T any]() Schema {
	return jsonSchema[T]{}
}

func (jsonSchema[T]) Decode(raw json.RawMessage) (interface{}, error) {
	var value T
	if len(raw) == 0 {
		return value, nil
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	config := mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &value,
	}
	decoder, err := mapstructure.NewDecoder(&config)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(generic); err != nil {
		return nil, err
	}
	return value, nil
}

func (jsonSchema[T]) Check(value interface{}) error {
	if _, ok := value.(T); !ok {
		var want T
		return fmt.Errorf("expected output of type %T, got %T", want, value)
	}
	return nil
}
