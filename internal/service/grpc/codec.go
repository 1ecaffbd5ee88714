package grpcsvc

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc/encoding"
)

// CodecName — content-subtype JSON-кодека: клиенты вызывают методы с grpc.CallContentSubtype(CodecName).
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec сериализует сообщения CheckoutService в JSON.
// Остальные сервисы на том же сервере (health) продолжают работать через proto.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "json codec: marshal %T", v)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "json codec: unmarshal %T", v)
	}
	return nil
}

func (jsonCodec) Name() string {
	return CodecName
}
