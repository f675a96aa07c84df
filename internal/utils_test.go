package internal

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestValidEmail(t *testing.T) {
	c := qt.New(t)
	for _, email := range []string{"user@example.com", "first.last+tag@sub.domain.io"} {
		c.Assert(ValidEmail(email), qt.IsTrue, qt.Commentf(email))
	}
	for _, email := range []string{"", "user", "user@", "@example.com", "user@example"} {
		c.Assert(ValidEmail(email), qt.IsFalse, qt.Commentf(email))
	}
	c.Assert(NormalizeEmail("  User@Example.COM "), qt.Equals, "user@example.com")
}

func TestPasswordHashing(t *testing.T) {
	c := qt.New(t)

	hash, err := HashPassword("correct horse")
	c.Assert(err, qt.IsNil)
	c.Assert(hash, qt.Not(qt.Equals), "correct horse")
	c.Assert(CheckPassword(hash, "correct horse"), qt.IsTrue)
	c.Assert(CheckPassword(hash, "wrong horse"), qt.IsFalse)

	other, err := HashPassword("correct horse")
	c.Assert(err, qt.IsNil)
	c.Assert(other, qt.Not(qt.Equals), hash)

	_, err = HashPassword("short")
	c.Assert(err, qt.ErrorIs, ErrPasswordTooShort)
	c.Assert(err, qt.ErrorMatches, "password must be at least 8 characters")
	_, err = HashPassword(strings.Repeat("x", 73))
	c.Assert(err, qt.ErrorIs, ErrPasswordTooLong)
	// 40 characters, 80 bytes
	_, err = HashPassword(strings.Repeat("ñ", 40))
	c.Assert(err, qt.ErrorIs, ErrPasswordTooLong)
}

func TestHashVerificationCode(t *testing.T) {
	c := qt.New(t)
	hash := HashVerificationCode("creator@reevlo.test", "a1b2c3")
	c.Assert(hash, qt.HasLen, 64)
	c.Assert(HashVerificationCode("creator@reevlo.test", "a1b2c3"), qt.Equals, hash)
	c.Assert(HashVerificationCode("other@reevlo.test", "a1b2c3"), qt.Not(qt.Equals), hash)
	c.Assert(HashVerificationCode("creator@reevlo.test", "a1b2c4"), qt.Not(qt.Equals), hash)
}

func TestRandomHex(t *testing.T) {
	c := qt.New(t)
	c.Assert(RandomHex(16), qt.HasLen, 32)
	c.Assert(RandomHex(16), qt.Not(qt.Equals), RandomHex(16))
}
