package store

import (
	"bytes"
	"encoding/gob"
)

// roomRecord is the durable snapshot form of a world room.
type roomRecord struct {
	ID          string
	Name        string
	Description string
	Exits       map[string]string // direction -> destination room ID
}

// encodeAccount serializes an Account using gob.
func encodeAccount(acct *Account) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(acct); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeAccount deserializes bytes back into an Account.
func decodeAccount(data []byte) (*Account, error) {
	var acct Account
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// encodeRoom serializes a roomRecord using gob.
func encodeRoom(r *roomRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeRoom deserializes bytes back into a roomRecord.
func decodeRoom(data []byte) (*roomRecord, error) {
	var r roomRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}
