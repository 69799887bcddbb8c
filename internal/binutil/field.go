// Package binutil provides small helpers for decoding fixed-width
// little-endian binary structures field by field, in the shape of
// wal-g's walparser/parsingutil package.
package binutil

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// FieldToParse describes one fixed-width field to read from a stream
// into Field, which must be a pointer to a fixed-size integer type.
type FieldToParse struct {
	Field interface{}
	Name  string
}

// PaddingByte skips a single byte without binding it to a variable.
var PaddingByte = FieldToParse{Field: new(byte), Name: "padding"}

// NewFieldToParse is a constructor mirroring the teacher's parsingutil API.
func NewFieldToParse(field interface{}, name string) *FieldToParse {
	return &FieldToParse{Field: field, Name: name}
}

// ParseFrom reads exactly binary.Size(f.Field) little-endian bytes from r.
func (f FieldToParse) ParseFrom(r io.Reader) error {
	err := binary.Read(r, binary.LittleEndian, f.Field)
	if err != nil {
		return errors.Wrapf(err, "failed to parse field '%s'", f.Name)
	}
	return nil
}

// ParseMultipleFieldsFromReader reads each field in order from r.
func ParseMultipleFieldsFromReader(fields []FieldToParse, r io.Reader) error {
	for _, field := range fields {
		if err := field.ParseFrom(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteMultipleFieldsToWriter writes each field in order to w.
func WriteMultipleFieldsToWriter(fields []FieldToParse, w io.Writer) error {
	for _, field := range fields {
		if err := binary.Write(w, binary.LittleEndian, field.Field); err != nil {
			return errors.Wrapf(err, "failed to write field '%s'", field.Name)
		}
	}
	return nil
}
