package encryption

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

// maskMagic opens every snapshot sealed by MaskEncryptor.
var maskMagic = []byte("SFTSNAP\x00")

// maskKey is XORed over the body so a sealed SQLite file no longer starts
// with its own header.
const maskKey = 0xA5

var errNotMasked = errors.New("not a masked snapshot")

// MaskEncryptor is the "test" encryption type: no keys on disk, a fixed
// header, and a one-byte XOR mask. It exercises the snapshot pipeline
// without age or a passphrase prompt.
type MaskEncryptor struct {
	passphrase *string
}

var _ sft.Encryptor = (*MaskEncryptor)(nil)

func NewMaskEncryptor() *MaskEncryptor {
	return &MaskEncryptor{}
}

// Setup pins the passphrase later Unlock calls must present.
func (e *MaskEncryptor) Setup(passphrase string) error {
	e.passphrase = &passphrase
	return nil
}

func (e *MaskEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(maskMagic); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := io.Copy(maskWriter{w}, r); err != nil {
		return fmt.Errorf("masking snapshot: %w", err)
	}
	return nil
}

// Unlock takes any passphrase until Setup has pinned one.
func (e *MaskEncryptor) Unlock(passphrase string) (sft.DecryptionContext, error) {
	if e.passphrase != nil && *e.passphrase != passphrase {
		return nil, ErrWrongPassphrase
	}
	return maskDecrypter{}, nil
}

func (e *MaskEncryptor) IsConfigured() bool { return true }

type maskDecrypter struct{}

func (maskDecrypter) Decrypt(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(maskMagic))
	if err != nil || !bytes.Equal(head, maskMagic) {
		return errNotMasked
	}
	br.Discard(len(maskMagic))
	if _, err := io.Copy(maskWriter{w}, br); err != nil {
		return fmt.Errorf("unmasking snapshot: %w", err)
	}
	return nil
}

type maskWriter struct{ w io.Writer }

func (m maskWriter) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	for i, b := range p {
		buf[i] = b ^ maskKey
	}
	return m.w.Write(buf)
}
