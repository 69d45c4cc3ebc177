// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

package phone_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ethio-transit/bsms-api/pkg/phone"
)

func TestCanonical(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"already canonical", "+251911223344", "+251911223344"},
		{"country code without plus", "251911223344", "+251911223344"},
		{"local zero prefix", "0911223344", "+251911223344"},
		{"bare subscriber number", "911223344", "+251911223344"},
		{"seven range", "0712345678", "+251712345678"},
		{"surrounding whitespace", "  0911223344 ", "+251911223344"},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			got, err := phone.Canonical(testCase.input)
			assert.NoError(t, err)
			assert.Equal(t, testCase.want, got)
		})
	}
}

func TestCanonical_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"12345",
		"+251811223344",  // 8XX range is not mobile
		"+2519112233445", // too long
		"091122334",      // too short
		"not-a-number",
	}

	for _, input := range invalid {
		_, err := phone.Canonical(input)
		assert.ErrorIs(t, err, phone.ErrInvalidFormat, "input %q", input)
	}
}

func TestLocal(t *testing.T) {
	assert.Equal(t, "0911223344", phone.Local("+251911223344"))
	// Non-canonical input passes through untouched.
	assert.Equal(t, "0911223344", phone.Local("0911223344"))
}
