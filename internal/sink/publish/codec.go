package publish

import (
	"FlowGuard/internal/model"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode renders a batch as the JSON payload sent to subscribers.
func Encode(batch model.Batch) ([]byte, error) {
	return json.Marshal(batch)
}

// Decode parses a payload produced by Encode.
func Decode(data []byte) (model.Batch, error) {
	var b model.Batch
	err := json.Unmarshal(data, &b)
	return b, err
}

// EncodeEvent renders a single event.
func EncodeEvent(e model.Event) ([]byte, error) {
	return json.Marshal(e)
}
