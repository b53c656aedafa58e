package cryptoutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T, id string, fill byte) Key {
	t.Helper()
	k, err := NewKey(id, bytes.Repeat([]byte{fill}, 32))
	require.NoError(t, err)
	return k
}

func TestKeyRing_SealOpen(t *testing.T) {
	ring, err := NewKeyRing(testKey(t, "k1", 1))
	require.NoError(t, err)

	for _, p := range Purposes {
		sealed, err := ring.Seal(p, []byte("payload"))
		require.NoError(t, err)
		assert.Contains(t, sealed, "v1.k1.")

		got, err := ring.Open(p, sealed)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), got)
	}
}

func TestKeyRing_CrossPurposeRejected(t *testing.T) {
	ring, err := NewKeyRing(testKey(t, "k1", 1))
	require.NoError(t, err)

	sealed, err := ring.Seal(PurposeCookie, []byte("payload"))
	require.NoError(t, err)

	_, err = ring.Open(PurposeToken, sealed)
	require.ErrorIs(t, err, ErrInvalidEnvelope)
	_, err = ring.Open(PurposeExtra, sealed)
	require.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestKeyRing_SingleBitFlipRejected(t *testing.T) {
	ring, err := NewKeyRing(testKey(t, "k1", 1))
	require.NoError(t, err)

	sealed, err := ring.Seal(PurposeToken, []byte(`{"user":{"id":2,"name":"Albert"}}`))
	require.NoError(t, err)

	for i := 0; i < len(sealed); i++ {
		for bit := 0; bit < 8; bit++ {
			b := []byte(sealed)
			b[i] ^= 1 << bit
			_, err := ring.Open(PurposeToken, string(b))
			require.ErrorIs(t, err, ErrInvalidEnvelope, "flip byte %d bit %d", i, bit)
		}
	}
}

func TestKeyRing_Rotation(t *testing.T) {
	oldKey := testKey(t, "old", 1)
	newKey := testKey(t, "new", 2)

	ring, err := NewKeyRing(oldKey)
	require.NoError(t, err)
	before, err := ring.Seal(PurposeCookie, []byte("before"))
	require.NoError(t, err)

	require.NoError(t, ring.Replace([]Key{newKey, oldKey}))
	assert.Equal(t, []string{"new", "old"}, ring.IDs())

	got, err := ring.Open(PurposeCookie, before)
	require.NoError(t, err, "grace key must still open")
	assert.Equal(t, []byte("before"), got)

	after, err := ring.Seal(PurposeCookie, []byte("after"))
	require.NoError(t, err)
	assert.Contains(t, after, "v1.new.")

	require.NoError(t, ring.Replace([]Key{newKey}))
	_, err = ring.Open(PurposeCookie, before)
	require.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestKeyRing_ForeignRingRejected(t *testing.T) {
	a, err := NewKeyRing(testKey(t, "same", 1))
	require.NoError(t, err)
	b, err := NewKeyRing(testKey(t, "same", 2))
	require.NoError(t, err)

	sealed, err := a.Seal(PurposeExtra, []byte("x"))
	require.NoError(t, err)
	_, err = b.Open(PurposeExtra, sealed)
	require.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestKeyRing_Malformed(t *testing.T) {
	ring, err := NewKeyRing(testKey(t, "k1", 1))
	require.NoError(t, err)

	for _, s := range []string{"", "v2.k1.AAAA", "v1.", "v1.k1", "v1.k1.!!!", "v1.k1.AAAA", "v1.bad id.AAAA"} {
		_, err := ring.Open(PurposeCookie, s)
		require.ErrorIs(t, err, ErrInvalidEnvelope, s)
	}
}

func TestNewKey_Validation(t *testing.T) {
	_, err := NewKey("k1", []byte("short"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 bytes")

	_, err = NewKey("bad.id", make([]byte, 32))
	require.Error(t, err)

	_, err = NewKeyRing()
	require.Error(t, err)

	k := testKey(t, "dup", 1)
	_, err = NewKeyRing(k, k)
	require.Error(t, err)
}

func TestKey_StringParse(t *testing.T) {
	k, err := GenerateKey()
	require.NoError(t, err)

	parsed, err := ParseKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k.ID, parsed.ID)
	assert.Equal(t, k.Secret, parsed.Secret)

	_, err = ParseKey("no-separator")
	require.Error(t, err)
}
