// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package ledger

import (
	"crypto/rand"
	"strings"
)

// receiptAlphabet has 32 symbols and leaves out I, O, 0 and 1.
const receiptAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	receiptPrefix = "VR"
	receiptGroups = 3
	receiptGroup  = 4
)

// newReceiptID returns a random id of the form VR-XXXX-XXXX-XXXX.
func newReceiptID() (string, error) {
	buf := make([]byte, receiptGroups*receiptGroup)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(receiptPrefix)
	for i, v := range buf {
		if i%receiptGroup == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(receiptAlphabet[int(v)%len(receiptAlphabet)])
	}
	return b.String(), nil
}

// MaskReceipt hides all but the last group of a receipt id.
func MaskReceipt(id string) string {
	groups := strings.Split(id, "-")
	if len(groups) != receiptGroups+1 {
		return strings.Repeat("*", len(id))
	}
	for i := 1; i < len(groups)-1; i++ {
		groups[i] = strings.Repeat("*", len(groups[i]))
	}
	return strings.Join(groups, "-")
}

// ValidReceiptID reports whether id has the receipt format.
func ValidReceiptID(id string) bool {
	if len(id) != len(receiptPrefix)+receiptGroups*(receiptGroup+1) || !strings.HasPrefix(id, receiptPrefix) {
		return false
	}
	for i := len(receiptPrefix); i < len(id); i++ {
		if (i-len(receiptPrefix))%(receiptGroup+1) == 0 {
			if id[i] != '-' {
				return false
			}
			continue
		}
		if !strings.ContainsRune(receiptAlphabet, rune(id[i])) {
			return false
		}
	}
	return true
}
