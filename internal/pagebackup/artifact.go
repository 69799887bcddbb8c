package pagebackup

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// An incremental artifact's structured prefix is a self-delimited array:
// a little-endian uint32 length (1+k), followed by that many little-
// endian uint32 elements — element 0 is the configured magic, elements
// 1..k are the changed-page indices in ascending order. A full-copy
// artifact either starts with a different length/magic pair or is too
// short to contain one; either way ReadPrefix reports ok=false and the
// caller restarts from offset 0 over the raw stream.

// WritePrefix emits the structured array [magic, p0, p1, ...].
func WritePrefix(w io.Writer, magic uint32, changedPages []uint32) error {
	arrayLen := uint32(1 + len(changedPages))
	if err := binary.Write(w, binary.LittleEndian, arrayLen); err != nil {
		return errors.Wrap(err, "WritePrefix: failed to write array length")
	}
	if err := binary.Write(w, binary.LittleEndian, magic); err != nil {
		return errors.Wrap(err, "WritePrefix: failed to write magic")
	}
	for _, page := range changedPages {
		if err := binary.Write(w, binary.LittleEndian, page); err != nil {
			return errors.Wrap(err, "WritePrefix: failed to write page index")
		}
	}
	return nil
}

// WriteFullPrefix emits the empty-changed-page-list prefix [magic],
// representing an unchanged file (spec.md §4.5 step 2).
func WriteFullPrefix(w io.Writer, magic uint32) error {
	return WritePrefix(w, magic, nil)
}

// PrefixLen returns the deterministic byte length of the prefix encoding
// for a [magic]+pages array: the length word plus (1+k) element words.
func PrefixLen(pages []uint32) int64 {
	return int64(4 + 4*(1+len(pages)))
}

// ReadPrefix reads the structured array header from r. It returns
// ok=false when the array is empty, the source is too short to contain
// a header, or the first element does not equal magic — in all of these
// cases the source is a raw full-file stream and the caller must restart
// reading from offset 0 rather than rely on r's current position.
//
// When ok is true, r's cursor is positioned exactly at the first page
// payload byte, and pages holds the changed-page indices in ascending
// order as read from the array.
func ReadPrefix(r io.Reader, magic uint32) (pages []uint32, ok bool, err error) {
	var arrayLen uint32
	if err := binary.Read(r, binary.LittleEndian, &arrayLen); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "ReadPrefix: failed to read array length")
	}
	if arrayLen == 0 {
		return nil, false, nil
	}

	var first uint32
	if err := binary.Read(r, binary.LittleEndian, &first); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "ReadPrefix: failed to read first element")
	}
	if first != magic {
		return nil, false, nil
	}

	pages = make([]uint32, 0, arrayLen-1)
	for i := uint32(1); i < arrayLen; i++ {
		var page uint32
		if err := binary.Read(r, binary.LittleEndian, &page); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, false, nil
			}
			return nil, false, errors.Wrap(err, "ReadPrefix: failed to read page index")
		}
		pages = append(pages, page)
	}
	return pages, true, nil
}
