package common

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"google.golang.org/protobuf/encoding/protowire"

	sparkerrors "github.com/lightsparkdev/spark-wallet/common/errors"
	"github.com/lightsparkdev/spark-wallet/common/keys"
)

// Field numbers of the SparkAddress message.
const (
	sparkAddressIdentityKeyField protowire.Number = 1
	sparkAddressInvoiceField     protowire.Number = 2
	sparkAddressSignatureField   protowire.Number = 3
)

// SparkAddress is a bech32m encoded identity public key, optionally carrying
// invoice fields and an invoice signature. Invoice fields are kept opaque.
type SparkAddress struct {
	IdentityPublicKey keys.Public
	Network           Network
	InvoiceFields     []byte
	Signature         []byte
}

// HasInvoice reports whether the address carries invoice fields.
func (a *SparkAddress) HasInvoice() bool {
	return len(a.InvoiceFields) > 0
}

func EncodeSparkAddress(identityPublicKey keys.Public, network Network) (string, error) {
	return (&SparkAddress{IdentityPublicKey: identityPublicKey, Network: network}).Encode()
}

func (a *SparkAddress) Encode() (string, error) {
	if a.IdentityPublicKey.IsZero() {
		return "", fmt.Errorf("identity public key is required")
	}
	hrp, err := NetworkToHrp(a.Network)
	if err != nil {
		return "", err
	}

	var payload []byte
	payload = protowire.AppendTag(payload, sparkAddressIdentityKeyField, protowire.BytesType)
	payload = protowire.AppendBytes(payload, a.IdentityPublicKey.Serialize())
	if len(a.InvoiceFields) > 0 {
		payload = protowire.AppendTag(payload, sparkAddressInvoiceField, protowire.BytesType)
		payload = protowire.AppendBytes(payload, a.InvoiceFields)
	}
	if len(a.Signature) > 0 {
		payload = protowire.AppendTag(payload, sparkAddressSignatureField, protowire.BytesType)
		payload = protowire.AppendBytes(payload, a.Signature)
	}

	data, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.EncodeM(hrp, data)
}

func DecodeSparkAddress(address string) (*SparkAddress, error) {
	hrp, data, err := bech32.DecodeNoLimit(address)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("failed to decode spark address: %w", err))
	}
	network := HrpToNetwork(hrp)
	if network == Unspecified {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("unknown network: %s", hrp))
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(err)
	}

	addr := &SparkAddress{Network: network}
	var identityKey []byte
	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return nil, sparkerrors.ValidationMalformedField(protowire.ParseError(n))
		}
		payload = payload[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, payload)
			if n < 0 {
				return nil, sparkerrors.ValidationMalformedField(protowire.ParseError(n))
			}
			payload = payload[n:]
			continue
		}
		value, n := protowire.ConsumeBytes(payload)
		if n < 0 {
			return nil, sparkerrors.ValidationMalformedField(protowire.ParseError(n))
		}
		payload = payload[n:]

		switch num {
		case sparkAddressIdentityKeyField:
			identityKey = value
		case sparkAddressInvoiceField:
			addr.InvoiceFields = value
		case sparkAddressSignatureField:
			addr.Signature = value
		}
	}

	if len(identityKey) == 0 {
		return nil, sparkerrors.ValidationMissingField(fmt.Errorf("spark address has no identity public key"))
	}
	addr.IdentityPublicKey, err = keys.ParsePublicKey(identityKey)
	if err != nil {
		return nil, sparkerrors.ValidationMalformedField(fmt.Errorf("invalid identity public key: %w", err))
	}
	return addr, nil
}

// HrpToNetwork accepts both the current and the legacy short prefixes.
func HrpToNetwork(hrp string) Network {
	switch hrp {
	case "sparkl", "spl":
		return Regtest
	case "sparkrt", "sprt":
		return Regtest
	case "sparkt", "spt":
		return Testnet
	case "sparks", "sps":
		return Signet
	case "spark", "sp":
		return Mainnet
	}
	return Unspecified
}

func NetworkToHrp(network Network) (string, error) {
	switch network {
	case Regtest:
		return "sparkrt", nil
	case Testnet:
		return "sparkt", nil
	case Signet:
		return "sparks", nil
	case Mainnet:
		return "spark", nil
	default:
		return "", fmt.Errorf("unknown network: %v", network)
	}
}
