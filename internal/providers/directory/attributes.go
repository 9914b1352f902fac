package directory

import (
	"math"
	"strconv"
	"time"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

// userAccountControl flags.
const (
	uacAccountDisable             = 0x0002
	uacPasswordNotRequired        = 0x0020
	uacServerTrustAccount         = 0x2000
	uacDontExpirePassword         = 0x10000
	uacTrustedForDelegation       = 0x80000
	uacUseDESKeyOnly              = 0x200000
	uacDontRequirePreAuth         = 0x400000
	uacPasswordExpired            = 0x800000
	uacTrustedToAuthForDelegation = 0x1000000
)

// pwdProperties flags on the domain object.
const (
	pwdPropComplex        = 0x1
	pwdPropStoreCleartext = 0x10
)

// fileTimeEpochOffset is the number of 100ns intervals between 1601-01-01
// and 1970-01-01.
const fileTimeEpochOffset = 116444736000000000

// uacFlags is a decoded userAccountControl value.
type uacFlags int64

func (u uacFlags) has(bit int64) bool { return int64(u)&bit != 0 }

func parseInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseFileTime decodes an AD FILETIME attribute such as pwdLastSet or
// lastLogonTimestamp. Zero and "never" are unknown.
func parseFileTime(s string) (models.Timestamp, bool) {
	v, ok := parseInt(s)
	if !ok {
		return models.Timestamp{}, false
	}
	if v <= 0 || v == math.MaxInt64 {
		return models.Timestamp{}, true
	}
	unix100ns := v - fileTimeEpochOffset
	return models.NewTimestamp(time.Unix(0, 0).Add(time.Duration(unix100ns) * 100)), true
}

// intervalDays converts a negative 100ns interval (maxPwdAge, minPwdAge) to
// whole days. The minimum int64 means "never".
func intervalDays(s string) (*int, bool) {
	v, ok := parseInt(s)
	if !ok {
		return nil, false
	}
	if v == math.MinInt64 {
		return nil, true
	}
	if v < 0 {
		v = -v
	}
	days := int(time.Duration(v*100) / (24 * time.Hour))
	return &days, true
}
