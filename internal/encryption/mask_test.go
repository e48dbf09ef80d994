package encryption

import (
	"bytes"
	"errors"
	"testing"
)

func TestMaskEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{"sqlite header", []byte("SQLite format 3\x00")},
		{"empty", []byte{}},
		{"several pages", bytes.Repeat([]byte("page"), 4096)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := NewMaskEncryptor()

			var sealed bytes.Buffer
			if err := e.Encrypt(bytes.NewReader(tt.input), &sealed); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if !bytes.HasPrefix(sealed.Bytes(), maskMagic) {
				t.Fatal("sealed output lacks the header")
			}
			if len(tt.input) > 0 && bytes.Contains(sealed.Bytes(), tt.input) {
				t.Error("sealed output contains the plaintext")
			}

			dc, err := e.Unlock("anything")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			var plain bytes.Buffer
			if err := dc.Decrypt(&sealed, &plain); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(plain.Bytes(), tt.input) {
				t.Errorf("round trip = %q, want %q", plain.Bytes(), tt.input)
			}
		})
	}
}

func TestMaskEncryptor_Passphrase(t *testing.T) {
	e := NewMaskEncryptor()
	if err := e.Setup(""); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if _, err := e.Unlock("x"); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("Unlock(x) after Setup(\"\") = %v, want ErrWrongPassphrase", err)
	}
	if _, err := e.Unlock(""); err != nil {
		t.Errorf("Unlock(\"\") = %v", err)
	}
}

func TestMaskDecrypter_RejectsUnmasked(t *testing.T) {
	for _, in := range [][]byte{[]byte("SQLite format 3\x00 rest"), []byte("SFT"), nil} {
		var out bytes.Buffer
		if err := (maskDecrypter{}).Decrypt(bytes.NewReader(in), &out); !errors.Is(err, errNotMasked) {
			t.Errorf("Decrypt(%q) = %v, want errNotMasked", in, err)
		}
		if out.Len() != 0 {
			t.Errorf("Decrypt(%q) wrote %d bytes", in, out.Len())
		}
	}
}
