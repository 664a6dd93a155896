package tokenstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	sessionRecordVersion1 = 1
	deviceRecordVersion1  = 1

	maxFieldLen = 1<<16 - 1
)

func writeField(buf *bytes.Buffer, s string) error {
	if len(s) > maxFieldLen {
		return errors.New("field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readField(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func encodeSession(s *CachedSession) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(sessionRecordVersion1)

	for _, field := range []string{
		s.Username, s.AccessToken, s.IDToken, s.RefreshToken,
		s.TokenType, s.LoginID, s.AuthFlowType,
	} {
		if err := writeField(&buf, field); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(&buf, binary.BigEndian, s.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSession(data []byte) (*CachedSession, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, ErrRecordCorrupt
	}
	if version != sessionRecordVersion1 {
		return nil, ErrRecordCorrupt
	}

	s := &CachedSession{}
	for _, dst := range []*string{
		&s.Username, &s.AccessToken, &s.IDToken, &s.RefreshToken,
		&s.TokenType, &s.LoginID, &s.AuthFlowType,
	} {
		v, err := readField(r)
		if err != nil {
			return nil, ErrRecordCorrupt
		}
		*dst = v
	}
	if err := binary.Read(r, binary.BigEndian, &s.IssuedAt); err != nil {
		return nil, ErrRecordCorrupt
	}
	if err := binary.Read(r, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, ErrRecordCorrupt
	}
	return s, nil
}

func encodeDevice(d *DeviceMetadata) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(deviceRecordVersion1)

	for _, field := range []string{d.DeviceKey, d.DeviceGroupKey, d.DevicePassword} {
		if err := writeField(&buf, field); err != nil {
			return nil, err
		}
	}
	if d.Remembered {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes(), nil
}

func decodeDevice(data []byte) (*DeviceMetadata, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, ErrRecordCorrupt
	}
	if version != deviceRecordVersion1 {
		return nil, ErrRecordCorrupt
	}

	d := &DeviceMetadata{}
	for _, dst := range []*string{&d.DeviceKey, &d.DeviceGroupKey, &d.DevicePassword} {
		v, err := readField(r)
		if err != nil {
			return nil, ErrRecordCorrupt
		}
		*dst = v
	}
	flag, err := r.ReadByte()
	if err != nil {
		return nil, ErrRecordCorrupt
	}
	d.Remembered = flag == 1
	return d, nil
}
