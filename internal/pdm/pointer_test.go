package pdm

import (
	"errors"
	"strings"
	"testing"
)

func TestPointer_EncodeParse(t *testing.T) {
	t.Run("plain pointer", func(t *testing.T) {
		p := Pointer{OID: Checksum([]byte("hello")), Size: 5}

		got, err := ParsePointer(p.Encode())
		if err != nil {
			t.Fatalf("ParsePointer() error = %v", err)
		}
		if got != p {
			t.Errorf("round-trip = %+v, want %+v", got, p)
		}
		if got.Encrypted() {
			t.Error("Encrypted() = true, want false")
		}
		if got.StoredOID() != p.OID {
			t.Errorf("StoredOID() = %q, want plain oid", got.StoredOID())
		}
	})

	t.Run("encrypted pointer", func(t *testing.T) {
		p := Pointer{
			OID:     Checksum([]byte("plain")),
			Size:    5,
			EncOID:  Checksum([]byte("cipher")),
			EncSize: 214,
		}

		got, err := ParsePointer(p.Encode())
		if err != nil {
			t.Fatalf("ParsePointer() error = %v", err)
		}
		if got != p {
			t.Errorf("round-trip = %+v, want %+v", got, p)
		}
		if !got.Encrypted() {
			t.Error("Encrypted() = false, want true")
		}
		if got.StoredOID() != p.EncOID {
			t.Errorf("StoredOID() = %q, want ciphertext oid", got.StoredOID())
		}
	})
}

func TestParsePointer_Errors(t *testing.T) {
	oid := Checksum([]byte("x"))

	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "missing version", data: "oid sha256:" + oid + "\nsize 1\n"},
		{name: "unsupported version", data: "version pdm-pointer/9\noid sha256:" + oid + "\nsize 1\n"},
		{name: "missing oid", data: "version pdm-pointer/1\nsize 1\n"},
		{name: "bad size", data: "version pdm-pointer/1\noid sha256:" + oid + "\nsize many\n"},
		{name: "malformed line", data: "version pdm-pointer/1\ngarbage\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePointer([]byte(tt.data)); err == nil {
				t.Errorf("ParsePointer(%q) expected error", tt.data)
			}
		})
	}
}

func TestParsePointer_IgnoresUnknownKeys(t *testing.T) {
	oid := Checksum([]byte("x"))
	data := "version pdm-pointer/1\noid sha256:" + oid + "\nsize 1\nfuture thing\n"

	got, err := ParsePointer([]byte(data))
	if err != nil {
		t.Fatalf("ParsePointer() error = %v", err)
	}
	if got.OID != oid || got.Size != 1 {
		t.Errorf("pointer = %+v, want oid and size parsed", got)
	}
}

func TestChecksum(t *testing.T) {
	// Known SHA-256 of the empty input.
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Checksum(nil); got != empty {
		t.Errorf("Checksum(nil) = %q, want %q", got, empty)
	}

	oid, n, err := ChecksumReader(strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("ChecksumReader() error = %v", err)
	}
	if n != 5 {
		t.Errorf("n = %d, want 5", n)
	}
	if oid != Checksum([]byte("hello")) {
		t.Errorf("ChecksumReader oid = %q, want Checksum equivalent", oid)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "conflict", err: ErrConflict, want: "conflict"},
		{name: "busy", err: ErrBusy, want: "busy"},
		{name: "typed already locked", err: &AlreadyLockedError{Filename: "a", Owner: "b"}, want: "already_locked"},
		{name: "typed not owner", err: &NotOwnerError{Filename: "a", Owner: "b", User: "c"}, want: "not_owner"},
		{name: "typed unauthorized", err: &UnauthorizedError{User: "a"}, want: "unauthorized"},
		{name: "typed not found", err: &NotFoundError{What: "file", Name: "a"}, want: "not_found"},
		{name: "unknown", err: errors.New("disk on fire"), want: "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}
