// Package ledgerxdr encodes transactions and decodes transaction metadata
// in the XDR wire format of the ledger.
package ledgerxdr

import (
	"bytes"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
	xdr "github.com/stellar/go-xdr/xdr3"
)

const (
	// maxArrayLen caps variable length arrays read from the wire.
	maxArrayLen = 1 << 12
	maxString   = 1 << 16
)

var (
	ErrUnsupportedMetaVersion = errors.New("unsupported transaction meta version")
	ErrUnknownEntryType       = errors.New("unknown ledger entry type")
	ErrUnknownChangeKind      = errors.New("unknown ledger entry change kind")
	ErrUnknownExtension       = errors.New("unknown extension version")
	ErrTrailingData           = errors.New("trailing data after xdr value")
)

// reader wraps an xdr decoder and keeps the first error.
type reader struct {
	d   *xdr.Decoder
	err error
}

func newReader(r io.Reader) *reader {
	return &reader{d: xdr.NewDecoder(r)}
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) int32() int32 {
	if r.err != nil {
		return 0
	}
	v, _, err := r.d.DecodeInt()
	r.fail(err)
	return v
}

func (r *reader) uint32() uint32 {
	if r.err != nil {
		return 0
	}
	v, _, err := r.d.DecodeUint()
	r.fail(err)
	return v
}

func (r *reader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, _, err := r.d.DecodeUhyper()
	r.fail(err)
	return v
}

func (r *reader) bool() bool {
	if r.err != nil {
		return false
	}
	v, _, err := r.d.DecodeBool()
	r.fail(err)
	return v
}

func (r *reader) string(max int) string {
	if r.err != nil {
		return ""
	}
	v, _, err := r.d.DecodeString(max)
	r.fail(err)
	return v
}

func (r *reader) key() (out [32]byte) {
	if r.err != nil {
		return out
	}
	v, _, err := r.d.DecodeFixedOpaque(32)
	if err != nil {
		r.fail(err)
		return out
	}
	copy(out[:], v)
	return out
}

// length reads an array length and checks it against maxArrayLen.
func (r *reader) length() int {
	n := r.uint32()
	if n > maxArrayLen {
		r.fail(errors.Errorf("array length %d exceeds %d", n, maxArrayLen))
		return 0
	}
	return int(n)
}

// emptyExt reads a union with a single void arm.
func (r *reader) emptyExt() {
	if v := r.int32(); r.err == nil && v != 0 {
		r.fail(errors.Wrapf(ErrUnknownExtension, "%d", v))
	}
}

// writer wraps an xdr encoder and keeps the first error.
type writer struct {
	e   *xdr.Encoder
	err error
}

func newWriter(w io.Writer) *writer {
	return &writer{e: xdr.NewEncoder(w)}
}

func (w *writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *writer) int32(v int32) {
	if w.err == nil {
		_, err := w.e.EncodeInt(v)
		w.fail(err)
	}
}

func (w *writer) uint32(v uint32) {
	if w.err == nil {
		_, err := w.e.EncodeUint(v)
		w.fail(err)
	}
}

func (w *writer) uint64(v uint64) {
	if w.err == nil {
		_, err := w.e.EncodeUhyper(v)
		w.fail(err)
	}
}

func (w *writer) bool(v bool) {
	if w.err == nil {
		_, err := w.e.EncodeBool(v)
		w.fail(err)
	}
}

func (w *writer) string(v string) {
	if w.err == nil {
		_, err := w.e.EncodeString(v)
		w.fail(err)
	}
}

func (w *writer) opaque(v []byte) {
	if w.err == nil {
		_, err := w.e.EncodeOpaque(v)
		w.fail(err)
	}
}

func (w *writer) fixed(v []byte) {
	if w.err == nil {
		_, err := w.e.EncodeFixedOpaque(v)
		w.fail(err)
	}
}

func (w *writer) key(v [32]byte) {
	w.fixed(v[:])
}

func (w *writer) length(n int) {
	w.uint32(uint32(n))
}

func (w *writer) emptyExt() {
	w.int32(0)
}

// marshal runs fn against a fresh writer and returns the produced bytes.
func marshal(fn func(w *writer)) ([]byte, error) {
	var buf bytes.Buffer
	w := newWriter(&buf)
	fn(w)
	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

// unmarshal runs fn against raw and requires the whole input to be consumed.
func unmarshal(raw []byte, fn func(r *reader)) error {
	src := bytes.NewReader(raw)
	r := newReader(src)
	fn(r)
	if r.err != nil {
		return r.err
	}
	if src.Len() != 0 {
		return errors.Wrapf(ErrTrailingData, "%d bytes", src.Len())
	}
	return nil
}

func decodeBase64(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode base64")
	}
	return raw, nil
}
