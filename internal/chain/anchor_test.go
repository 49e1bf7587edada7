package chain

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeDescriptor(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDescriptor(t *testing.T) {
	path := writeDescriptor(t, `{
		"address": "0x1234567890abcdef1234567890abcdef12345678",
		"abi": [{"type":"function","name":"createRFQ","inputs":[]}]
	}`)

	d, err := LoadDescriptor(path)
	require.NoError(t, err)
	require.Equal(t, "0x1234567890abcdef1234567890abcdef12345678", d.Address)
	require.NotEmpty(t, d.ABI)
}

func TestLoadDescriptorMissingAddress(t *testing.T) {
	path := writeDescriptor(t, `{"abi": [{"type":"function","name":"f","inputs":[]}]}`)
	_, err := LoadDescriptor(path)
	require.Error(t, err)
}

func TestLoadDescriptorMissingABI(t *testing.T) {
	path := writeDescriptor(t, `{"address": "0xabc"}`)
	_, err := LoadDescriptor(path)
	require.Error(t, err)
}

func TestLoadDescriptorBadJSON(t *testing.T) {
	path := writeDescriptor(t, `not json`)
	_, err := LoadDescriptor(path)
	require.Error(t, err)
}

func TestLoadDescriptorMissingFile(t *testing.T) {
	_, err := LoadDescriptor(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestKeccak(t *testing.T) {
	// Known keccak256 of the empty string.
	require.Equal(t,
		"0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470",
		Keccak(""))

	require.Equal(t, Keccak("same input"), Keccak("same input"))
	require.NotEqual(t, Keccak("a"), Keccak("b"))
	require.Len(t, Keccak("anything"), 66)
}

func TestToUnixSeconds(t *testing.T) {
	require.Equal(t, int64(0), ToUnixSeconds(nil))

	zero := time.Time{}
	require.Equal(t, int64(0), ToUnixSeconds(&zero))

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.Equal(t, at.Unix(), ToUnixSeconds(&at))
}
