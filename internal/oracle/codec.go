package oracle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/holiman/uint256"
	"github.com/mselser95/settlement-engine/pkg/types"
)

// Kind names an oracle variant.
type Kind string

const (
	KindCrypto Kind = "crypto"
	KindSports Kind = "sports"
	KindTrends Kind = "trends"
)

// Decoder turns a reporter payload into the value the market resolves on.
type Decoder interface {
	Kind() Kind
	Decode(payload []byte) (*uint256.Int, error)
}

// DecoderFor returns the payload decoder of kind.
func DecoderFor(kind Kind) (Decoder, error) {
	switch kind {
	case KindCrypto:
		return Crypto{}, nil
	case KindSports:
		return Sports{}, nil
	case KindTrends:
		return Trends{}, nil
	default:
		return nil, fmt.Errorf("oracle kind %q: %w", kind, types.ErrInvalidParams)
	}
}

//nolint:gochecknoglobals // immutable ABI layouts
var (
	cryptoArgs = abi.Arguments{
		{Name: "symbol", Type: mustType("string")},
		{Name: "price", Type: mustType("uint256")},
		{Name: "observedAt", Type: mustType("uint64")},
	}
	sportsArgs = abi.Arguments{
		{Name: "homeScore", Type: mustType("uint256")},
		{Name: "awayScore", Type: mustType("uint256")},
		{Name: "winner", Type: mustType("uint8")},
	}
	trendsArgs = abi.Arguments{
		{Name: "keyword", Type: mustType("string")},
		{Name: "score", Type: mustType("uint256")},
	}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("oracle: abi type %s: %v", t, err))
	}
	return typ
}

// Crypto payloads are (string symbol, uint256 price, uint64 observedAt); the
// resolved value is the price.
type Crypto struct{}

func (Crypto) Kind() Kind { return KindCrypto }

func (Crypto) Decode(payload []byte) (*uint256.Int, error) {
	vals, err := cryptoArgs.Unpack(payload)
	if err != nil {
		return nil, fmt.Errorf("decode crypto payload: %w: %w", types.ErrInvalidParams, err)
	}
	return bigValue(vals[1])
}

// EncodeCrypto builds a crypto price report.
func EncodeCrypto(symbol string, price *uint256.Int, observedAt uint64) ([]byte, error) {
	return cryptoArgs.Pack(symbol, price.ToBig(), observedAt)
}

// Sports payloads are (uint256 home, uint256 away, uint8 winner); the
// resolved value is the winning outcome index.
type Sports struct{}

func (Sports) Kind() Kind { return KindSports }

func (Sports) Decode(payload []byte) (*uint256.Int, error) {
	vals, err := sportsArgs.Unpack(payload)
	if err != nil {
		return nil, fmt.Errorf("decode sports payload: %w: %w", types.ErrInvalidParams, err)
	}
	winner, ok := vals[2].(uint8)
	if !ok {
		return nil, fmt.Errorf("sports winner %T: %w", vals[2], types.ErrInvalidParams)
	}
	return uint256.NewInt(uint64(winner)), nil
}

// EncodeSports builds a sports result report.
func EncodeSports(home, away uint64, winner uint8) ([]byte, error) {
	return sportsArgs.Pack(new(big.Int).SetUint64(home), new(big.Int).SetUint64(away), winner)
}

// Trends payloads are (string keyword, uint256 score); the resolved value is the score.
type Trends struct{}

func (Trends) Kind() Kind { return KindTrends }

func (Trends) Decode(payload []byte) (*uint256.Int, error) {
	vals, err := trendsArgs.Unpack(payload)
	if err != nil {
		return nil, fmt.Errorf("decode trends payload: %w: %w", types.ErrInvalidParams, err)
	}
	return bigValue(vals[1])
}

// EncodeTrends builds a trend score report.
func EncodeTrends(keyword string, score *uint256.Int) ([]byte, error) {
	return trendsArgs.Pack(keyword, score.ToBig())
}

func bigValue(v interface{}) (*uint256.Int, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("payload value %T: %w", v, types.ErrInvalidParams)
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return nil, types.ErrOverflow
	}
	return u, nil
}
