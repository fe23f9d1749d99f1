package database

// Address length bounds in hex digits, excluding the 0x prefix.
const (
	minAddressDigits = 40
	maxAddressDigits = 132
)

// IsAddress verifies whether the string represents a valid hex-encoded
// address with the 0x prefix.
func IsAddress(a string) bool {
	if !has0xPrefix(a) {
		return false
	}

	a = a[2:]
	return len(a) >= minAddressDigits && len(a) <= maxAddressDigits && isHex(a)
}

// =============================================================================

// has0xPrefix validates the address starts with a 0x.
func has0xPrefix(a string) bool {
	return len(a) >= 2 && a[0] == '0' && (a[1] == 'x' || a[1] == 'X')
}

// isHex validates whether each byte is a valid hexadecimal character.
func isHex(a string) bool {
	for _, c := range []byte(a) {
		if !isHexCharacter(c) {
			return false
		}
	}

	return true
}

// isHexCharacter returns bool of c being a valid hexadecimal.
func isHexCharacter(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
