package aml

const upperHexDigits = "0123456789ABCDEF"

// EISAIDToString decodes a compressed EISA ID (as produced by the ASL
// EISAID() macro) into its 7 character form, e.g. 0x0303D041 -> "PNP0303".
//
// The integer holds the encoded bytes in little-endian order. After a byte
// swap, bits 26-30, 21-25 and 16-20 hold three 5-bit manufacturer letters
// ('A' = 1), bits 4-15 the product number and bits 0-3 the revision.
func EISAIDToString(id uint32) string {
	v := id>>24 | (id>>8)&0xff00 | (id<<8)&0xff0000 | id<<24

	return string([]byte{
		byte((v>>26)&0x1f) + 0x40,
		byte((v>>21)&0x1f) + 0x40,
		byte((v>>16)&0x1f) + 0x40,
		upperHexDigits[(v>>12)&0xf],
		upperHexDigits[(v>>8)&0xf],
		upperHexDigits[(v>>4)&0xf],
		upperHexDigits[v&0xf],
	})
}
