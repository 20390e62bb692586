package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"
)

// =============================================================================
// ABI Encoding
// =============================================================================

// The EduChain contract surface only needs uint256, address, bool and string
// parameters, so the encoder below covers exactly those rather than pulling
// in a full ABI implementation.

// Param is a typed contract call argument.
type Param struct {
	kind string
	num  *big.Int
	str  string
	b    bool
}

// Uint wraps a uint256 argument.
func Uint(v *big.Int) Param { return Param{kind: "uint256", num: v} }

// Uint64 wraps a uint256 argument given as a uint64.
func Uint64(v uint64) Param { return Param{kind: "uint256", num: new(big.Int).SetUint64(v)} }

// Addr wraps an address argument.
func Addr(v string) Param { return Param{kind: "address", str: v} }

// Bool wraps a bool argument.
func Bool(v bool) Param { return Param{kind: "bool", b: v} }

// Str wraps a dynamically-encoded string argument.
func Str(v string) Param { return Param{kind: "string", str: v} }

// Keccak256 returns the keccak-256 digest of data.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// Selector returns the 4-byte function selector for a signature such as
// "createCourse(string,string,uint256,string,uint256)".
func Selector(signature string) []byte {
	return Keccak256([]byte(signature))[:4]
}

// EventTopic returns the 0x-prefixed 32-byte topic hash for an event
// signature such as "CourseCreated(uint256,address,string,uint256)".
func EventTopic(signature string) string {
	return "0x" + hex.EncodeToString(Keccak256([]byte(signature)))
}

// EncodeCall ABI-encodes a function call and returns 0x-prefixed calldata.
func EncodeCall(signature string, args ...Param) (string, error) {
	data, err := encodeArgs(args)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(append(Selector(signature), data...)), nil
}

// encodeArgs packs arguments head/tail style: static values inline, dynamic
// values as offsets into a tail section.
func encodeArgs(args []Param) ([]byte, error) {
	head := make([][]byte, len(args))
	var tail []byte
	tailOffset := 32 * len(args)

	for i, arg := range args {
		switch arg.kind {
		case "uint256":
			if arg.num == nil || arg.num.Sign() < 0 {
				return nil, fmt.Errorf("arg %d: uint256 must be non-negative", i)
			}
			head[i] = padUint(arg.num)
		case "address":
			word, err := padAddress(arg.str)
			if err != nil {
				return nil, fmt.Errorf("arg %d: %w", i, err)
			}
			head[i] = word
		case "bool":
			word := make([]byte, 32)
			if arg.b {
				word[31] = 1
			}
			head[i] = word
		case "string":
			head[i] = padUint(big.NewInt(int64(tailOffset + len(tail))))
			tail = append(tail, encodeDynamicBytes([]byte(arg.str))...)
		default:
			return nil, fmt.Errorf("arg %d: unsupported type %q", i, arg.kind)
		}
	}

	var out []byte
	for _, word := range head {
		out = append(out, word...)
	}
	return append(out, tail...), nil
}

func encodeDynamicBytes(b []byte) []byte {
	out := padUint(big.NewInt(int64(len(b))))
	out = append(out, b...)
	if rem := len(b) % 32; rem != 0 {
		out = append(out, make([]byte, 32-rem)...)
	}
	return out
}

func padUint(v *big.Int) []byte {
	word := make([]byte, 32)
	v.FillBytes(word)
	return word
}

func padAddress(addr string) ([]byte, error) {
	raw, err := decodeHexBytes(addr)
	if err != nil {
		return nil, err
	}
	if len(raw) != 20 {
		return nil, fmt.Errorf("address must be 20 bytes, got %d", len(raw))
	}
	word := make([]byte, 32)
	copy(word[12:], raw)
	return word, nil
}

// =============================================================================
// ABI Decoding
// =============================================================================

// DecodeReturn decodes contract return data against a list of type names.
// Supported: uint256 (*big.Int), address (string), bool, string, uint256[]
// ([]*big.Int).
func DecodeReturn(data []byte, types []string) ([]interface{}, error) {
	out := make([]interface{}, len(types))
	for i, typ := range types {
		word, err := wordAt(data, i)
		if err != nil {
			return nil, err
		}
		switch typ {
		case "uint256":
			out[i] = new(big.Int).SetBytes(word)
		case "address":
			out[i] = "0x" + hex.EncodeToString(word[12:])
		case "bool":
			out[i] = word[31] != 0
		case "string":
			s, err := stringAt(data, word)
			if err != nil {
				return nil, fmt.Errorf("field %d: %w", i, err)
			}
			out[i] = s
		case "uint256[]":
			arr, err := uintArrayAt(data, word)
			if err != nil {
				return nil, fmt.Errorf("field %d: %w", i, err)
			}
			out[i] = arr
		default:
			return nil, fmt.Errorf("field %d: unsupported type %q", i, typ)
		}
	}
	return out, nil
}

func wordAt(data []byte, index int) ([]byte, error) {
	start := index * 32
	if len(data) < start+32 {
		return nil, fmt.Errorf("return data too short for word %d", index)
	}
	return data[start : start+32], nil
}

func stringAt(data, offsetWord []byte) (string, error) {
	offset := new(big.Int).SetBytes(offsetWord)
	if !offset.IsInt64() || offset.Int64()+32 > int64(len(data)) {
		return "", fmt.Errorf("string offset out of range")
	}
	pos := offset.Int64()
	length := new(big.Int).SetBytes(data[pos : pos+32])
	if !length.IsInt64() || pos+32+length.Int64() > int64(len(data)) {
		return "", fmt.Errorf("string length out of range")
	}
	return string(data[pos+32 : pos+32+length.Int64()]), nil
}

func uintArrayAt(data, offsetWord []byte) ([]*big.Int, error) {
	offset := new(big.Int).SetBytes(offsetWord)
	if !offset.IsInt64() || offset.Int64()+32 > int64(len(data)) {
		return nil, fmt.Errorf("array offset out of range")
	}
	pos := offset.Int64()
	length := new(big.Int).SetBytes(data[pos : pos+32])
	if !length.IsInt64() || pos+32+length.Int64()*32 > int64(len(data)) {
		return nil, fmt.Errorf("array length out of range")
	}
	out := make([]*big.Int, length.Int64())
	for i := range out {
		start := pos + 32 + int64(i)*32
		out[i] = new(big.Int).SetBytes(data[start : start+32])
	}
	return out, nil
}

// =============================================================================
// Hex Helpers
// =============================================================================

func decodeHexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	return strconv.ParseUint(s, 16, 64)
}

// ParseHexQuantity decodes a 0x-prefixed hex quantity into a uint64. Used
// for identifiers carried in log topics.
func ParseHexQuantity(s string) (uint64, error) {
	return parseHexUint(s)
}

// EncodeReturn ABI-encodes values for the given types. Primarily used by
// tests standing in for the ledger node.
func EncodeReturn(types []string, values []interface{}) ([]byte, error) {
	if len(types) != len(values) {
		return nil, fmt.Errorf("type/value count mismatch")
	}
	args := make([]Param, 0, len(types))
	var arrays []int
	for i, typ := range types {
		switch typ {
		case "uint256":
			args = append(args, Uint(values[i].(*big.Int)))
		case "address":
			args = append(args, Addr(values[i].(string)))
		case "bool":
			args = append(args, Bool(values[i].(bool)))
		case "string":
			args = append(args, Str(values[i].(string)))
		case "uint256[]":
			// Encoded below through the same head/tail machinery by
			// splicing a placeholder; track the index.
			args = append(args, Param{kind: "uint256[]"})
			arrays = append(arrays, i)
		default:
			return nil, fmt.Errorf("unsupported type %q", typ)
		}
	}
	if len(arrays) == 0 {
		return encodeArgs(args)
	}
	// uint256[] only ever appears alone in this contract's return values.
	if len(types) != 1 {
		return nil, fmt.Errorf("uint256[] encoding supported only as a sole return value")
	}
	vals := values[0].([]*big.Int)
	out := padUint(big.NewInt(32))
	out = append(out, padUint(big.NewInt(int64(len(vals))))...)
	for _, v := range vals {
		out = append(out, padUint(v)...)
	}
	return out, nil
}
