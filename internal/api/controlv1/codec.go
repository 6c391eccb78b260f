package controlv1

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// CodecName is registered with Connect and selects the application/json
// (unary) and application/connect+json (streaming) content types.
const CodecName = "json"

// Codec marshals the plain Go messages of this package as JSON. Connect's
// built-in JSON codec only accepts protobuf messages.
type Codec struct{}

// Name implements connect.Codec.
func (Codec) Name() string {
	return CodecName
}

// Marshal implements connect.Codec.
func (Codec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal %T", msg)
	}
	return data, nil
}

// Unmarshal implements connect.Codec. An empty body decodes to the zero
// message.
func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return errors.Wrapf(err, "failed to unmarshal %T", msg)
	}
	return nil
}
