package pdm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// pointerVersion identifies the pointer file format. The repository never
// holds file content directly; it holds one of these small text stanzas per
// managed file, and the content lives in a BlobStore under its checksum.
const pointerVersion = "pdm-pointer/1"

// Pointer describes where a managed file's content lives. OID/Size always
// refer to the plaintext. When the content is stored encrypted, EncOID and
// EncSize describe the ciphertext actually held by the blob store.
type Pointer struct {
	OID     string
	Size    int64
	EncOID  string
	EncSize int64
}

// Encrypted reports whether the stored content is ciphertext.
func (p Pointer) Encrypted() bool { return p.EncOID != "" }

// StoredOID returns the checksum under which the blob store holds the
// content: the ciphertext checksum when encrypted, the plain one otherwise.
func (p Pointer) StoredOID() string {
	if p.Encrypted() {
		return p.EncOID
	}
	return p.OID
}

// Encode renders the pointer in its on-disk text form. The format is
// line-oriented and stable so repository diffs stay readable.
func (p Pointer) Encode() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "version %s\n", pointerVersion)
	fmt.Fprintf(&b, "oid sha256:%s\n", p.OID)
	fmt.Fprintf(&b, "size %d\n", p.Size)
	if p.Encrypted() {
		fmt.Fprintf(&b, "enc sha256:%s\n", p.EncOID)
		fmt.Fprintf(&b, "encsize %d\n", p.EncSize)
	}
	return []byte(b.String())
}

// ParsePointer decodes a pointer file.
func ParsePointer(data []byte) (Pointer, error) {
	var p Pointer
	seenVersion := false
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok {
			return Pointer{}, fmt.Errorf("malformed pointer line %q", line)
		}
		switch key {
		case "version":
			if value != pointerVersion {
				return Pointer{}, fmt.Errorf("unsupported pointer version %q", value)
			}
			seenVersion = true
		case "oid":
			p.OID = strings.TrimPrefix(value, "sha256:")
		case "enc":
			p.EncOID = strings.TrimPrefix(value, "sha256:")
		case "size", "encsize":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Pointer{}, fmt.Errorf("parsing pointer %s: %w", key, err)
			}
			if key == "size" {
				p.Size = n
			} else {
				p.EncSize = n
			}
		default:
			// Unknown keys are ignored for forward compatibility.
		}
	}
	if !seenVersion {
		return Pointer{}, fmt.Errorf("pointer has no version line")
	}
	if p.OID == "" {
		return Pointer{}, fmt.Errorf("pointer has no oid line")
	}
	return p, nil
}

// Checksum returns the hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ChecksumReader consumes r and returns its hex SHA-256 and byte count.
func ChecksumReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
