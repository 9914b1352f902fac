package models

// Kerberos encryption type labels produced by DecodeEncryptionTypes.
const (
	EncTypeDES    = "DES"
	EncTypeRC4    = "RC4"
	EncTypeAES128 = "AES128"
	EncTypeAES256 = "AES256"
	EncTypeNone   = "None"
)

// encTypeBits is the msDS-SupportedEncryptionTypes bit layout in output order.
var encTypeBits = []struct {
	bit   int
	label string
}{
	{0x1, EncTypeDES},
	{0x2, EncTypeRC4},
	{0x4, EncTypeAES128},
	{0x8, EncTypeAES256},
}

// DecodeEncryptionTypes converts a supported-encryption-types bitmask into
// its capability labels. A nil mask is treated as 0. Unrecognised bits are
// ignored. The result is never empty: a mask with no recognised bits decodes
// to ["None"].
func DecodeEncryptionTypes(mask *int) []string {
	var v int
	if mask != nil {
		v = *mask
	}
	var out []string
	for _, b := range encTypeBits {
		if v&b.bit != 0 {
			out = append(out, b.label)
		}
	}
	if len(out) == 0 {
		return []string{EncTypeNone}
	}
	return out
}

// HasWeakEncryption reports whether types contains DES or RC4.
func HasWeakEncryption(types []string) bool {
	for _, t := range types {
		if t == EncTypeDES || t == EncTypeRC4 {
			return true
		}
	}
	return false
}
