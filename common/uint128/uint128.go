package uint128

import (
	"fmt"
	"math/big"

	"github.com/lightsparkdev/spark-wallet/common/errors"
)

// Size is the width of an encoded token amount.
const Size = 16

var MaxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Uint128 is an unsigned 128-bit integer. The zero value is 0.
type Uint128 struct{ value *big.Int }

func New() Uint128 { return Uint128{value: new(big.Int)} }

func FromUint64(v uint64) Uint128 { return Uint128{value: new(big.Int).SetUint64(v)} }

// FromBigInt copies v, failing if it does not fit in 128 bits.
func FromBigInt(v *big.Int) (Uint128, error) {
	u := Uint128{value: new(big.Int)}
	if v != nil {
		u.value.Set(v)
	}
	if err := u.Validate(); err != nil {
		return Uint128{}, err
	}
	return u, nil
}

// FromBytes parses a 16-byte big-endian amount.
func FromBytes(b []byte) (Uint128, error) {
	var u Uint128
	if err := u.SafeSetBytes(b); err != nil {
		return Uint128{}, err
	}
	return u, nil
}

func (u *Uint128) Validate() error {
	if u.value == nil || u.value.Sign() < 0 || u.value.Cmp(MaxUint128) > 0 {
		return errors.ValidationMalformedField(fmt.Errorf("uint128 out of range"))
	}
	return nil
}

func (u *Uint128) SafeSetBytes(b []byte) error {
	if len(b) != Size {
		return errors.ValidationMalformedField(fmt.Errorf("uint128 must be %d bytes, got %d", Size, len(b)))
	}
	if u.value == nil {
		u.value = new(big.Int)
	}
	u.value.SetBytes(b)
	return nil
}

// Bytes returns the 16-byte big-endian encoding.
func (u Uint128) Bytes() []byte {
	out := make([]byte, Size)
	if u.value != nil {
		u.value.FillBytes(out)
	}
	return out
}

// Add returns u+v, failing on overflow.
func (u Uint128) Add(v Uint128) (Uint128, error) {
	return FromBigInt(new(big.Int).Add(u.BigInt(), v.BigInt()))
}

// Sub returns u-v, failing on underflow.
func (u Uint128) Sub(v Uint128) (Uint128, error) {
	return FromBigInt(new(big.Int).Sub(u.BigInt(), v.BigInt()))
}

func (u Uint128) Cmp(v Uint128) int {
	return u.BigInt().Cmp(v.BigInt())
}

func (u Uint128) IsZero() bool {
	return u.value == nil || u.value.Sign() == 0
}

func (u Uint128) String() string {
	if u.value == nil {
		return "0"
	}
	return u.value.String()
}

func (u Uint128) BigInt() *big.Int {
	if u.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(u.value)
}

// Sum adds amounts, failing if the total overflows 128 bits.
func Sum(amounts ...Uint128) (Uint128, error) {
	total := new(big.Int)
	for _, a := range amounts {
		total.Add(total, a.BigInt())
	}
	return FromBigInt(total)
}
