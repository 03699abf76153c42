package sensor

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Credentials is the decoded connect message.
type Credentials struct {
	Username string
	Password string
}

// ReadCredentials reads the fixed 32+32 byte connect message.
func ReadCredentials(r io.Reader) (Credentials, error) {
	var buf [2 * CredentialFieldSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Credentials{}, err
	}
	return Credentials{
		Username: DecodeFixedString(buf[:CredentialFieldSize]),
		Password: DecodeFixedString(buf[CredentialFieldSize:]),
	}, nil
}

// WriteCredentials sends the connect message. A single trailing newline is
// stripped from each field; fields must leave room for the zero terminator.
func WriteCredentials(w io.Writer, c Credentials) error {
	user := strings.TrimSuffix(c.Username, "\n")
	pass := strings.TrimSuffix(c.Password, "\n")

	if len(user) >= CredentialFieldSize {
		return fmt.Errorf("username longer than %d bytes", CredentialFieldSize-1)
	}
	if len(pass) >= CredentialFieldSize {
		return fmt.Errorf("password longer than %d bytes", CredentialFieldSize-1)
	}

	var buf [2 * CredentialFieldSize]byte
	EncodeFixedString(buf[:CredentialFieldSize], user)
	EncodeFixedString(buf[CredentialFieldSize:], pass)

	_, err := w.Write(buf[:])
	return err
}

// ReadByte reads exactly one byte.
func ReadByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteByte writes exactly one byte.
func WriteByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// ReadInt32 reads a 4-byte signed integer in wire order.
func ReadInt32(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(wireOrder.Uint32(b[:])), nil
}

// WriteInt32 writes a 4-byte signed integer in wire order.
func WriteInt32(w io.Writer, v int32) error {
	var b [4]byte
	wireOrder.PutUint32(b[:], uint32(v))
	_, err := w.Write(b[:])
	return err
}

// EncodeFixedString copies s into dst and zero-fills the rest. s is cut so that
// at least one terminating zero remains.
func EncodeFixedString(dst []byte, s string) {
	clear(dst)
	if len(dst) == 0 {
		return
	}
	copy(dst[:len(dst)-1], s)
}

// DecodeFixedString returns the bytes of b up to the first zero.
func DecodeFixedString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
