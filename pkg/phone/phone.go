// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

/*
Package phone validates and canonicalizes Ethiopian MSISDNs.

Subscribers enter their number in many shapes ("0911...", "251911...",
"+251911...", "911..."). Every store lookup and SMS dispatch must use a single
canonical form, so this package normalizes all accepted shapes to the
international "+2519XXXXXXXX" / "+2517XXXXXXXX" format.

The canonical form is the ONLY representation persisted in users.account;
conversion back to the local "09..." form happens solely at the SMS gateway
boundary via [Local].
*/
package phone

import (
	"errors"
	"regexp"
	"strings"
)

// ethiopianMobile matches mobile numbers on the 9XX and 7XX ranges with an
// optional +251 / 251 / 0 prefix.
var ethiopianMobile = regexp.MustCompile(`^(\+251|0|251)?(9|7)\d{8}$`)

// ErrInvalidFormat is returned when the input is not an Ethiopian mobile number.
var ErrInvalidFormat = errors.New("phone: invalid phone number format")

// Canonical validates the raw input and returns the "+251..." canonical form.
//
// # Accepted Shapes
//   - "+251911111111" (already canonical)
//   - "251911111111"
//   - "0911111111"
//   - "911111111"
func Canonical(raw string) (string, error) {
	number := strings.TrimSpace(raw)

	if !ethiopianMobile.MatchString(number) {
		return "", ErrInvalidFormat
	}

	switch {
	case strings.HasPrefix(number, "+251"):
		return number, nil
	case strings.HasPrefix(number, "251"):
		return "+" + number, nil
	case strings.HasPrefix(number, "0"):
		return "+251" + number[1:], nil
	default:
		// Bare "9..." or "7..." subscriber number.
		return "+251" + number, nil
	}
}

// Local converts a canonical "+251..." number to the local "0..." dialing form
// expected by the SMS gateway. Non-canonical input is returned unchanged.
func Local(canonical string) string {
	if strings.HasPrefix(canonical, "+251") {
		return "0" + canonical[len("+251"):]
	}
	return canonical
}

// IsValid reports whether raw is an acceptable Ethiopian mobile number.
func IsValid(raw string) bool {
	_, err := Canonical(raw)
	return err == nil
}
