package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	email, err := NormalizeEmail("  Bob@X.io ")
	require.NoError(t, err)
	require.Equal(t, "bob@x.io", email)

	_, err = NormalizeEmail("")
	require.ErrorIs(t, err, ErrEmailRequired)

	_, err = NormalizeEmail("not-an-email")
	require.ErrorIs(t, err, ErrInvalidEmail)

	_, err = NormalizeEmail("Bob <bob@x.io>")
	require.ErrorIs(t, err, ErrInvalidEmail)

	_, err = NormalizeEmail(strings.Repeat("a", 320) + "@x.io")
	require.ErrorIs(t, err, ErrEmailTooLong)
}

func TestValidateSlug(t *testing.T) {
	require.NoError(t, ValidateSlug("acme"))
	require.NoError(t, ValidateSlug(" Acme-Labs "))
	require.ErrorIs(t, ValidateSlug("ab"), ErrSlugTooShort)
	require.ErrorIs(t, ValidateSlug(strings.Repeat("a", 65)), ErrSlugTooLong)
	require.ErrorIs(t, ValidateSlug("-acme"), ErrInvalidSlug)
	require.ErrorIs(t, ValidateSlug("ac_me"), ErrInvalidSlug)
}
