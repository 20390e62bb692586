package chain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/tidwall/gjson"
)

// RPCRequest is a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	ID      int             `json:"id"`
}

// RPCError is a JSON-RPC 2.0 error object. Contract reverts arrive here
// with the revert reason in Message (and sometimes Data).
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// CallMsg describes a contract call or transaction to be signed.
type CallMsg struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to"`
	Value string `json:"value,omitempty"` // hex base units
	Data  string `json:"data,omitempty"`  // hex calldata
}

// NewCallMsg builds a CallMsg with hex-encoded value.
func NewCallMsg(from, to string, value *big.Int, data string) CallMsg {
	msg := CallMsg{From: from, To: to, Data: data}
	if value != nil && value.Sign() > 0 {
		msg.Value = "0x" + value.Text(16)
	}
	return msg
}

// Event is a decoded log entry as emitted by newer node versions that
// return pre-decoded events in the receipt.
type Event struct {
	Name string            `json:"event"`
	Args map[string]string `json:"args"`
}

// Log is a raw log entry: topics[0] is the event signature hash, indexed
// arguments follow in topics[1..], the rest is ABI-encoded in Data.
type Log struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// ReceiptShape classifies the confirmation payload encoding. Node and
// client versions disagree on what a receipt contains, so the shape must
// be sniffed rather than assumed.
type ReceiptShape int

const (
	ShapeUnknown ReceiptShape = iota
	ShapeEvents               // decoded event list present
	ShapeLogs                 // raw log list present
	ShapeStatusOnly           // success flag only, no event data
)

func (s ReceiptShape) String() string {
	switch s {
	case ShapeEvents:
		return "events"
	case ShapeLogs:
		return "logs"
	case ShapeStatusOnly:
		return "status-only"
	}
	return "unknown"
}

// Receipt is a transaction confirmation payload. Raw preserves the exact
// node response so heterogeneous encodings can be re-examined; the typed
// fields are populated on a best-effort basis.
type Receipt struct {
	TxHash string
	Events []Event
	Logs   []Log
	Raw    json.RawMessage
}

// ParseReceipt normalizes a raw receipt payload.
func ParseReceipt(raw json.RawMessage) (*Receipt, error) {
	r := &Receipt{Raw: raw}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("receipt is not an object")
	}
	r.TxHash = root.Get("transactionHash").String()

	if ev := root.Get("events"); ev.IsArray() {
		if err := json.Unmarshal([]byte(ev.Raw), &r.Events); err != nil {
			return nil, fmt.Errorf("unmarshal events: %w", err)
		}
	}
	if lg := root.Get("logs"); lg.IsArray() {
		if err := json.Unmarshal([]byte(lg.Raw), &r.Logs); err != nil {
			return nil, fmt.Errorf("unmarshal logs: %w", err)
		}
	}
	return r, nil
}

// Shape reports which of the known confirmation encodings this receipt
// uses. Events win over logs; a bare success flag is status-only.
func (r *Receipt) Shape() ReceiptShape {
	if len(r.Events) > 0 {
		return ShapeEvents
	}
	if len(r.Logs) > 0 {
		return ShapeLogs
	}
	if gjson.GetBytes(r.Raw, "status").Exists() {
		return ShapeStatusOnly
	}
	return ShapeUnknown
}

// StatusOK reports whether the receipt indicates successful execution.
// The status field may be the number 1, the string "0x1", or "1".
func (r *Receipt) StatusOK() bool {
	status := gjson.GetBytes(r.Raw, "status")
	if !status.Exists() {
		// Receipts carrying decoded events or logs imply success: failed
		// transactions emit nothing.
		return len(r.Events) > 0 || len(r.Logs) > 0
	}
	switch status.Type {
	case gjson.Number:
		return status.Int() == 1
	case gjson.String:
		return status.String() == "0x1" || status.String() == "1"
	case gjson.True:
		return true
	}
	return false
}

// FindEvent returns the first decoded event with the given name, or nil.
func (r *Receipt) FindEvent(name string) *Event {
	for i := range r.Events {
		if r.Events[i].Name == name {
			return &r.Events[i]
		}
	}
	return nil
}

// FindLogByTopic returns the first raw log whose first topic equals the
// given signature hash, or nil. Hex casing varies between nodes.
func (r *Receipt) FindLogByTopic(topic string) *Log {
	for i := range r.Logs {
		if len(r.Logs[i].Topics) > 0 && strings.EqualFold(r.Logs[i].Topics[0], topic) {
			return &r.Logs[i]
		}
	}
	return nil
}
