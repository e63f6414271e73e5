package aml

import (
	"io"
	"kestrel/kernel"
)

var (
	errInvalidUnreadByte = &kernel.Error{Module: "aml", Message: "invalid use of UnreadByte"}
	errInvalidNameString = &kernel.Error{Module: "aml", Message: "malformed name string"}
	errInvalidString     = &kernel.Error{Module: "aml", Message: "malformed string constant"}
	errTruncatedStream   = &kernel.Error{Module: "aml", Message: "unexpected end of AML stream"}
)

// streamReader reads an AML byte stream. The stream slice usually overlays a
// transient mapping of an ACPI table so values handed out by the reader must
// be copied before the mapping is released.
type streamReader struct {
	offset uint32
	data   []byte
}

// EOF returns true if the end of the stream has been reached.
func (r *streamReader) EOF() bool {
	return r.offset >= uint32(len(r.data))
}

// ReadByte returns the next byte from the stream.
func (r *streamReader) ReadByte() (byte, error) {
	if r.EOF() {
		return 0, io.EOF
	}

	r.offset++
	return r.data[r.offset-1], nil
}

// PeekByte returns the next byte from the stream without advancing the read pointer.
func (r *streamReader) PeekByte() (byte, error) {
	if r.EOF() {
		return 0, io.EOF
	}

	return r.data[r.offset], nil
}

// UnreadByte moves back the read pointer by one byte.
func (r *streamReader) UnreadByte() error {
	if r.offset == 0 {
		return errInvalidUnreadByte
	}

	r.offset--
	return nil
}

// Offset returns the current offset.
func (r *streamReader) Offset() uint32 {
	return r.offset
}

// SetOffset sets the reader offset to the supplied value.
func (r *streamReader) SetOffset(off uint32) {
	r.offset = off
}

// readPkgLength decodes a PkgLength and returns the stream offset where the
// package ends. The encoded length covers the PkgLength bytes themselves.
func (r *streamReader) readPkgLength() (uint32, *kernel.Error) {
	start := r.offset
	pkgLen, err := r.readRawPkgLength()
	if err != nil {
		return 0, err
	}

	end := start + pkgLen
	if end > uint32(len(r.data)) || end < r.offset {
		return 0, errTruncatedStream
	}

	return end, nil
}

// readRawPkgLength decodes a PkgLength value. The top two bits of the lead
// byte hold the number of bytes that follow; in that case only the low
// nybble of the lead byte is part of the value.
func (r *streamReader) readRawPkgLength() (uint32, *kernel.Error) {
	lead, err := r.ReadByte()
	if err != nil {
		return 0, errTruncatedStream
	}

	followCount := lead >> 6
	if followCount == 0 {
		return uint32(lead & 0x3f), nil
	}

	pkgLen := uint32(lead & 0xf)
	for i := uint8(0); i < followCount; i++ {
		next, err := r.ReadByte()
		if err != nil {
			return 0, errTruncatedStream
		}
		pkgLen |= uint32(next) << (4 + 8*i)
	}

	return pkgLen, nil
}

// readNumConstant reads a little-endian value that is numBytes long.
func (r *streamReader) readNumConstant(numBytes uint8) (uint64, *kernel.Error) {
	var res uint64

	for c := uint8(0); c < numBytes; c++ {
		next, err := r.ReadByte()
		if err != nil {
			return 0, errTruncatedStream
		}

		res |= uint64(next) << (8 * c)
	}

	return res, nil
}

// readString reads a null-terminated ASCII string.
func (r *streamReader) readString() (string, *kernel.Error) {
	start := r.offset
	for {
		next, err := r.ReadByte()
		if err != nil {
			return "", errTruncatedStream
		}

		if next == 0x00 {
			return string(r.data[start : r.offset-1]), nil
		}

		if next > 0x7f {
			return "", errInvalidString
		}
	}
}

func isLeadNameChar(b byte) bool {
	return (b >= 'A' && b <= 'Z') || b == '_'
}

func isNameChar(b byte) bool {
	return isLeadNameChar(b) || (b >= '0' && b <= '9')
}

// isNameStringStart returns true if b can start a NameString.
func isNameStringStart(b byte) bool {
	return isLeadNameChar(b) || b == '\\' || b == '^' || b == dualNamePrefix || b == multiNamePrefix
}

const (
	dualNamePrefix  = 0x2e
	multiNamePrefix = 0x2f
)

// readNameSeg reads a single 4 character name segment.
func (r *streamReader) readNameSeg() (string, *kernel.Error) {
	if r.offset+4 > uint32(len(r.data)) {
		return "", errTruncatedStream
	}

	seg := r.data[r.offset : r.offset+4]
	if !isLeadNameChar(seg[0]) || !isNameChar(seg[1]) || !isNameChar(seg[2]) || !isNameChar(seg[3]) {
		return "", errInvalidNameString
	}

	r.offset += 4
	return string(seg), nil
}

// readNameString reads a NameString and returns it in its textual form with
// the segments separated by dots (e.g. "\_SB_.PCI0" or "^^LPCB").
func (r *streamReader) readNameString() (string, *kernel.Error) {
	var str []byte

	// NameString := RootChar NamePath | PrefixPath NamePath
	next, err := r.PeekByte()
	if err != nil {
		return "", errTruncatedStream
	}

	switch next {
	case '\\':
		str = append(str, next)
		r.offset++
	case '^':
		for next == '^' {
			str = append(str, next)
			r.offset++
			if next, err = r.PeekByte(); err != nil {
				return "", errTruncatedStream
			}
		}
	}

	// NamePath := NameSeg | DualNamePath | MultiNamePath | NullName
	next, err = r.ReadByte()
	if err != nil {
		return "", errTruncatedStream
	}

	var segCount int
	switch next {
	case 0x00:
		return string(str), nil
	case dualNamePrefix:
		segCount = 2
	case multiNamePrefix:
		count, err := r.ReadByte()
		if err != nil || count == 0 {
			return "", errInvalidNameString
		}
		segCount = int(count)
	default:
		_ = r.UnreadByte()
		segCount = 1
	}

	for i := 0; i < segCount; i++ {
		seg, err := r.readNameSeg()
		if err != nil {
			return "", err
		}

		if i > 0 {
			str = append(str, '.')
		}
		str = append(str, seg...)
	}

	return string(str), nil
}
