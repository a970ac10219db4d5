package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireRecord 是记录的 JSON 形式，文件和 S3 后端共用
type wireRecord struct {
	Key   string     `json:"key,omitempty"`
	Date  *time.Time `json:"date"`
	Value []byte     `json:"value"`
	TTL   int64      `json:"ttl,omitempty"` // 纳秒
}

func encodeRecord(rec Record, withKey bool) ([]byte, error) {
	date := rec.InsertedAt
	w := wireRecord{
		Date:  &date,
		Value: rec.Payload,
		TTL:   int64(rec.TTL),
	}
	if withKey {
		w.Key = rec.Key
	}
	return json.Marshal(w)
}

// decodeRecord 解析记录，key 为空时使用记录里保存的 key
func decodeRecord(key string, data []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if w.Date == nil || w.Date.IsZero() {
		return Record{}, fmt.Errorf("%w: missing date", ErrMalformedRecord)
	}
	if w.TTL < 0 {
		return Record{}, fmt.Errorf("%w: negative ttl", ErrMalformedRecord)
	}
	if key == "" {
		key = w.Key
	}
	if key == "" {
		return Record{}, fmt.Errorf("%w: missing key", ErrMalformedRecord)
	}

	if w.Value == nil {
		return Record{}, fmt.Errorf("%w: missing value", ErrMalformedRecord)
	}

	return Record{
		Key:        key,
		InsertedAt: *w.Date,
		TTL:        time.Duration(w.TTL),
		Payload:    w.Value,
	}, nil
}
