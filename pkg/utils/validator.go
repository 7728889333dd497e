package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// state code, PAN (5 letters, 4 digits, 1 letter), entity number, Z, check char
	gstinRegex = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)

	// GSTINCandidateRegex finds GSTIN-shaped tokens in free text.
	GSTINCandidateRegex = regexp.MustCompile(`\b[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]\b`)

	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

const gstinCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// NormalizeGSTIN upper-cases gstin and strips spaces.
func NormalizeGSTIN(gstin string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(gstin), " ", ""))
}

// ValidateGSTIN checks the format and check character of an Indian
// GST identification number.
func ValidateGSTIN(gstin string) error {
	g := NormalizeGSTIN(gstin)
	if len(g) != 15 {
		return fmt.Errorf("GSTIN must be 15 characters: %s", gstin)
	}
	if !gstinRegex.MatchString(g) {
		return fmt.Errorf("GSTIN has invalid format: %s", gstin)
	}
	if want := GSTINCheckChar(g[:14]); g[14] != want {
		return fmt.Errorf("GSTIN check character mismatch: %s (expected %c)", gstin, want)
	}
	return nil
}

// GSTINCheckChar computes the check character for the first 14
// characters of a GSTIN (base-36 Luhn mod N).
func GSTINCheckChar(body string) byte {
	sum := 0
	for i := 0; i < len(body) && i < 14; i++ {
		v := strings.IndexByte(gstinCharset, body[i])
		if v < 0 {
			return '?'
		}
		factor := 1
		if i%2 == 1 {
			factor = 2
		}
		p := v * factor
		sum += p/36 + p%36
	}
	return gstinCharset[(36-sum%36)%36]
}

// GSTINStateCode returns the two-digit state prefix of a GSTIN.
func GSTINStateCode(gstin string) string {
	g := NormalizeGSTIN(gstin)
	if len(g) < 2 {
		return ""
	}
	return g[:2]
}

// SanitizeString removes control characters
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}

// SanitizeFileName reduces name to a safe base name. Directory parts
// and control characters are dropped, so the result can never escape
// the folder it is joined to.
func SanitizeFileName(name string) string {
	name = SanitizeString(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	switch name {
	case ".", "..", "/", "":
		return ""
	}
	return name
}
