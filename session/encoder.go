package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	recordFormatVersion = 1
	familyFormatVersion = 1
	denialFormatVersion = 1

	maxFieldLen = 255
)

var errFieldTooLong = errors.New("field too long")

func writeString(buf *bytes.Buffer, name, v string) error {
	if len(v) > maxFieldLen {
		return fmt.Errorf("%s: %w", name, errFieldTooLong)
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func readInt64(r *bytes.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

// EncodeRecord serializes a session record. TokenID is not stored; it is the key.
//
// The fixed header (version, status, three big-endian int64 timestamps) is read
// by offset from the store scripts, so its layout must not move.
func EncodeRecord(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(64 + len(rec.PrincipalID) + len(rec.FamilyID) + len(rec.AccessTokenID))

	buf.WriteByte(recordFormatVersion)
	buf.WriteByte(byte(rec.Status))
	writeInt64(&buf, rec.IssuedAt)
	writeInt64(&buf, rec.ExpiresAt)
	writeInt64(&buf, rec.AccessExpiresAt)

	if err := writeString(&buf, "principalID", rec.PrincipalID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, "familyID", rec.FamilyID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, "accessTokenID", rec.AccessTokenID); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRecord parses a blob written by EncodeRecord.
func DecodeRecord(data []byte) (*Record, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersion {
		return nil, fmt.Errorf("unsupported record version %d", version)
	}
	status, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	rec := &Record{Status: Status(status)}
	if rec.IssuedAt, err = readInt64(r); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = readInt64(r); err != nil {
		return nil, err
	}
	if rec.AccessExpiresAt, err = readInt64(r); err != nil {
		return nil, err
	}
	if rec.PrincipalID, err = readString(r); err != nil {
		return nil, err
	}
	if rec.FamilyID, err = readString(r); err != nil {
		return nil, err
	}
	if rec.AccessTokenID, err = readString(r); err != nil {
		return nil, err
	}
	return rec, nil
}

// EncodeFamily serializes a family record.
func EncodeFamily(f *Family) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(96 + len(f.CurrentID) + len(f.PrincipalID) + len(f.Claims.Contact))

	buf.WriteByte(familyFormatVersion)
	buf.WriteByte(byte(f.Status))
	writeInt64(&buf, int64(f.Generation))
	writeInt64(&buf, f.CreatedAt)
	writeInt64(&buf, f.LastUsedAt)

	if err := writeString(&buf, "currentID", f.CurrentID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, "principalID", f.PrincipalID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, "contact", f.Claims.Contact); err != nil {
		return nil, err
	}
	if err := writeString(&buf, "role", f.Claims.Role); err != nil {
		return nil, err
	}
	if len(f.Claims.Scopes) > maxFieldLen {
		return nil, fmt.Errorf("scopes: %w", errFieldTooLong)
	}
	buf.WriteByte(byte(len(f.Claims.Scopes)))
	for _, scope := range f.Claims.Scopes {
		if err := writeString(&buf, "scope", scope); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeFamily parses a blob written by EncodeFamily. FamilyID is the key
// suffix and is filled by the store.
func DecodeFamily(data []byte) (*Family, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != familyFormatVersion {
		return nil, fmt.Errorf("unsupported family version %d", version)
	}
	status, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	f := &Family{Status: FamilyStatus(status)}
	gen, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	f.Generation = uint64(gen)
	if f.CreatedAt, err = readInt64(r); err != nil {
		return nil, err
	}
	if f.LastUsedAt, err = readInt64(r); err != nil {
		return nil, err
	}
	if f.CurrentID, err = readString(r); err != nil {
		return nil, err
	}
	if f.PrincipalID, err = readString(r); err != nil {
		return nil, err
	}
	if f.Claims.Contact, err = readString(r); err != nil {
		return nil, err
	}
	if f.Claims.Role, err = readString(r); err != nil {
		return nil, err
	}
	count, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if count > 0 {
		f.Claims.Scopes = make([]string, 0, count)
		for i := 0; i < int(count); i++ {
			scope, err := readString(r)
			if err != nil {
				return nil, err
			}
			f.Claims.Scopes = append(f.Claims.Scopes, scope)
		}
	}
	return f, nil
}

// EncodeDenial serializes a denylist entry.
func EncodeDenial(d Denial) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(denialFormatVersion)
	writeInt64(&buf, d.RevokedAt)
	if err := writeString(&buf, "reason", d.Reason); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeDenial parses a blob written by EncodeDenial.
func DecodeDenial(data []byte) (*Denial, error) {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != denialFormatVersion {
		return nil, fmt.Errorf("unsupported denial version %d", version)
	}
	d := &Denial{}
	if d.RevokedAt, err = readInt64(r); err != nil {
		return nil, err
	}
	if d.Reason, err = readString(r); err != nil {
		return nil, err
	}
	return d, nil
}
