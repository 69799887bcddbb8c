package pagebackup

import (
	"io"

	"github.com/wal-g/pgpagebackup/internal/binutil"
)

// PageHeaderSize is the fixed size, in bytes, of a PostgreSQL page header.
const PageHeaderSize = 24

const (
	validFlagsMask = 7
	layoutVersion  = 4
	invalidLsn     = 0
)

// PageHeader holds the fields of a PostgreSQL page header, laid out
// exactly as "=LL6HL" (two uint32, six uint16, one uint32), little-endian.
type PageHeader struct {
	LsnHi     uint32
	LsnLo     uint32
	Checksum  uint16
	Flags     uint16
	Lower     uint16
	Upper     uint16
	Special   uint16
	Version   uint16
	PruneXid  uint32
}

// Lsn combines the high/low halves into the 64-bit log sequence number.
func (h *PageHeader) Lsn() uint64 {
	return (uint64(h.LsnHi) << 32) | uint64(h.LsnLo)
}

// ParsePageHeader reads the 24-byte page header from r and reports
// whether the page satisfies the validity predicate from spec.md §3.
// blockSize is the configured page size B. The LSN is always returned,
// even when the page is invalid, to keep the signature uniform (it is
// otherwise unused by callers on the invalid path).
func ParsePageHeader(r io.Reader, blockSize uint16) (valid bool, lsn uint64, err error) {
	header := PageHeader{}
	fields := []binutil.FieldToParse{
		{Field: &header.LsnHi, Name: "lsnHi"},
		{Field: &header.LsnLo, Name: "lsnLo"},
		{Field: &header.Checksum, Name: "checksum"},
		{Field: &header.Flags, Name: "flags"},
		{Field: &header.Lower, Name: "lower"},
		{Field: &header.Upper, Name: "upper"},
		{Field: &header.Special, Name: "special"},
		{Field: &header.Version, Name: "version"},
		{Field: &header.PruneXid, Name: "pruneXid"},
	}
	if err := binutil.ParseMultipleFieldsFromReader(fields, r); err != nil {
		return false, 0, err
	}

	lsn = header.Lsn()
	valid = isPageValid(&header, blockSize, lsn)
	return valid, lsn, nil
}

func isPageValid(h *PageHeader, blockSize uint16, lsn uint64) bool {
	if h.Flags&validFlagsMask != h.Flags {
		return false
	}
	if h.Lower < PageHeaderSize || h.Lower > h.Upper || h.Upper > h.Special || h.Special > blockSize {
		return false
	}
	if lsn == invalidLsn {
		return false
	}
	if h.Version != blockSize+layoutVersion {
		return false
	}
	return true
}
