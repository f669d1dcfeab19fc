package util

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "value")
	defer os.Unsetenv("TEST_KEY")

	assert.Equal(t, "value", GetEnv("TEST_KEY", "default"))
	assert.Equal(t, "default", GetEnv("MISSING_KEY", "default"))
}

func TestGetEnvAsInt(t *testing.T) {
	os.Setenv("TEST_INT", "42")
	defer os.Unsetenv("TEST_INT")

	assert.Equal(t, 42, GetEnvAsInt("TEST_INT", 1))
	assert.Equal(t, 1, GetEnvAsInt("MISSING_INT", 1))

	os.Setenv("TEST_INT", "not-a-number")
	assert.Equal(t, 1, GetEnvAsInt("TEST_INT", 1))
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(""))
	assert.True(t, IsBlank("   "))
	assert.False(t, IsBlank("x"))
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "6281234567890", DigitsOnly("+62 812-3456-7890"))
	assert.Equal(t, "", DigitsOnly("abc"))
	assert.Equal(t, "081234567890", DigitsOnly("081234567890"))
}

func TestFileExists(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "util")
	assert.NoError(t, err)
	f.Close()

	assert.True(t, FileExists(f.Name()))
	assert.False(t, FileExists(f.Name()+".missing"))
}
