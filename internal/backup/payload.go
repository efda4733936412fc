package backup

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"findash/internal/core"
)

const (
	PayloadVersion = 1

	EncodingBase64 = "base64"
	EncodingHex    = "hex"
)

// Payload is the JSON document stored as one blob.
type Payload struct {
	Version   int               `json:"version"`
	ID        string            `json:"id,omitempty"`
	CreatedAt string            `json:"createdAt"`
	Reason    core.BackupReason `json:"reason"`
	Settings  json.RawMessage   `json:"settings,omitempty"`
	Database  *DatabaseSection  `json:"database"`
}

// DatabaseSection carries the encoded store file. Data stays raw until
// decoded so a non-string value is reported as missing data, not as a
// broken document.
type DatabaseSection struct {
	Encoding string          `json:"encoding,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// BlobName is the sink name of a backup taken at t.
func BlobName(t time.Time) string {
	return "backup-" + strings.ReplaceAll(t.UTC().Format(core.TimestampLayout), ":", "-") + ".json"
}

// EncodePayload builds the blob for a store snapshot.
func EncodePayload(id string, createdAt time.Time, reason core.BackupReason, settings json.RawMessage, db []byte) ([]byte, error) {
	data, err := json.Marshal(base64.StdEncoding.EncodeToString(db))
	if err != nil {
		return nil, err
	}
	p := Payload{
		Version:   PayloadVersion,
		ID:        id,
		CreatedAt: createdAt.UTC().Format(core.TimestampLayout),
		Reason:    reason,
		Settings:  settings,
		Database:  &DatabaseSection{Encoding: EncodingBase64, Data: data},
	}
	out, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode backup payload: %w", err)
	}
	return out, nil
}

// DecodePayload parses a fetched blob and returns it with the decoded
// store bytes.
func DecodePayload(raw []byte) (Payload, []byte, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, nil, core.Upstream(core.CodeBackupResponseInvalid, "backup blob is not a JSON object", err)
	}
	if p.Database == nil || len(p.Database.Data) == 0 {
		return Payload{}, nil, core.Integrity(core.CodeBackupDatabaseMissing, "backup has no database section")
	}
	var encoded string
	if err := json.Unmarshal(p.Database.Data, &encoded); err != nil || encoded == "" {
		return Payload{}, nil, core.Integrity(core.CodeBackupDatabaseMissing, "backup database data is not a string")
	}

	var (
		db  []byte
		err error
	)
	switch enc := strings.ToLower(strings.TrimSpace(p.Database.Encoding)); enc {
	case "", EncodingBase64:
		db, err = base64.StdEncoding.DecodeString(encoded)
	case EncodingHex:
		db, err = hex.DecodeString(encoded)
	default:
		return Payload{}, nil, core.Integrity(core.CodeBackupDatabaseMissing, fmt.Sprintf("unsupported database encoding %q", enc))
	}
	if err != nil {
		return Payload{}, nil, core.Integrity(core.CodeBackupDatabaseMissing, "backup database data cannot be decoded")
	}
	return p, db, nil
}

// hasSettings reports whether the payload carries a settings object.
func (p Payload) hasSettings() bool {
	s := strings.TrimSpace(string(p.Settings))
	return strings.HasPrefix(s, "{")
}
