// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package auth

// # One-Time Passcode Constraints

const (
	// otpMin and otpMax bound generated passcodes to exactly six digits,
	// matching what the login and reset screens accept.
	otpMin = 100000
	otpMax = 999999
)
