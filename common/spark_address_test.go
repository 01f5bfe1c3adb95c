package common

import (
	"encoding/hex"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/keys"
)

const knownIdentityPubKeyHex = "0353908bac090ba741de6147a540a665537006911590f93249b2823dbe187d3213"

func TestEncodeSparkAddress_KnownVectors(t *testing.T) {
	identityKey := keys.MustParsePublicKeyHex(knownIdentityPubKeyHex)
	tests := []struct {
		network Network
		want    string
	}{
		{network: Regtest, want: "sparkrt1pgssx5us3wkqjza8g80xz3a9gznx25msq6g3ty8exfym9q3ahcv86vsnxxdy83"},
		{network: Mainnet, want: "spark1pgssx5us3wkqjza8g80xz3a9gznx25msq6g3ty8exfym9q3ahcv86vsn5qrctw"},
	}
	for _, tt := range tests {
		t.Run(tt.network.String(), func(t *testing.T) {
			got, err := EncodeSparkAddress(identityKey, tt.network)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			decoded, err := DecodeSparkAddress(got)
			require.NoError(t, err)
			assert.Equal(t, tt.network, decoded.Network)
			assert.True(t, decoded.IdentityPublicKey.Equals(identityKey))
			assert.False(t, decoded.HasInvoice())
		})
	}
}

func TestDecodeSparkAddress_InvoiceRoundTrip(t *testing.T) {
	invoice := "sparkrt1pgssx5us3wkqjza8g80xz3a9gznx25msq6g3ty8exfym9q3ahcv86vsnzffssqgjzqqejta89sa8su5f05g0vunfzzkj5zr5v4ehgnt9d4hnyggr2wgghtqfpwn5rhnpg7j5pfn92dcqdyg4jrunyjdjsg7muxraxgfn5zcgs8dcr3sxzrqdetshygps36q8rfqg49d0p0447trnpyxh9f76kt9cwrfx4342jym5emx049chkfsz6j9qc0z8cl7ymmsckx42k76c2qm5f5n5kfvyd26x78eyw0ygs502vg42n8ls"

	decoded, err := DecodeSparkAddress(invoice)
	require.NoError(t, err)

	assert.Equal(t, Regtest, decoded.Network)
	assert.Equal(t, knownIdentityPubKeyHex, decoded.IdentityPublicKey.ToHex())
	assert.True(t, decoded.HasInvoice())
	assert.Len(t, decoded.InvoiceFields, 83)
	assert.Equal(t,
		"8a95af0beb5f2c73090d72a7dab2cb870d26ac6aa91374ceccfa9717b2602d48a0c3c47c7fc4dee18b1aaab7b58503744d274b25846ab46f1f2473c88851ea62",
		hex.EncodeToString(decoded.Signature))

	reencoded, err := decoded.Encode()
	require.NoError(t, err)
	assert.Equal(t, invoice, reencoded)
}

func TestDecodeSparkAddress_LegacyPrefix(t *testing.T) {
	rng := rand.NewChaCha8([32]byte{7})
	identityKey := keys.MustGeneratePrivateKeyFromRand(rng).Public()

	addr, err := EncodeSparkAddress(identityKey, Testnet)
	require.NoError(t, err)

	decoded, err := DecodeSparkAddress(addr)
	require.NoError(t, err)
	assert.Equal(t, Testnet, decoded.Network)

	assert.Equal(t, Regtest, HrpToNetwork("spl"))
	assert.Equal(t, Regtest, HrpToNetwork("sprt"))
	assert.Equal(t, Testnet, HrpToNetwork("spt"))
	assert.Equal(t, Signet, HrpToNetwork("sps"))
	assert.Equal(t, Mainnet, HrpToNetwork("sp"))
	assert.Equal(t, Unspecified, HrpToNetwork("bc"))
}

func TestDecodeSparkAddress_Errors(t *testing.T) {
	tests := []struct {
		name    string
		address string
	}{
		{name: "empty", address: ""},
		{name: "bad checksum", address: "sparkrt1pgssx5us3wkqjza8g80xz3a9gznx25msq6g3ty8exfym9q3ahcv86vsnxxdy84"},
		{name: "unknown network", address: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSparkAddress(tt.address)
			require.Error(t, err)
			assert.Equal(t, sparkerrors.KindValidation, sparkerrors.KindOf(err))
		})
	}
}

func TestEncodeSparkAddress_Errors(t *testing.T) {
	_, err := EncodeSparkAddress(keys.Public{}, Regtest)
	require.ErrorContains(t, err, "identity public key is required")

	identityKey := keys.MustParsePublicKeyHex(knownIdentityPubKeyHex)
	_, err = EncodeSparkAddress(identityKey, Unspecified)
	require.ErrorContains(t, err, "unknown network")
}
