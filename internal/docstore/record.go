package docstore

import (
	"encoding/json"
	"fmt"

	"github.com/inovacc/chatdb/internal/encoding"
	"github.com/inovacc/chatdb/internal/model"
	"github.com/tidwall/gjson"
)

// indexEntryValue is stored under every index entry key.
var indexEntryValue = []byte{0x01}

func encodeRecord(rec model.Record) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: record is nil", ErrData)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrData, err)
	}

	return data, nil
}

func decodeRecord(data []byte) (model.Record, error) {
	rec, err := encoding.ParseJSON[model.Record](data)
	if err != nil {
		return nil, err
	}

	return *rec, nil
}

// extractKey resolves keyPath against the JSON document. ok is false when
// the path is missing or does not hold a valid key.
func extractKey(data []byte, keyPath string) (enc []byte, key any, ok bool) {
	k, valid := keyFromJSON(gjson.GetBytes(data, keyPath))
	if !valid {
		return nil, nil, false
	}

	enc, err := EncodeKey(k)
	if err != nil {
		return nil, nil, false
	}

	return enc, k, true
}
