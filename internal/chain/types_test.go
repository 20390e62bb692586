package chain

import (
	"encoding/json"
	"testing"
)

func mustParse(t *testing.T, raw string) *Receipt {
	t.Helper()
	receipt, err := ParseReceipt(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("ParseReceipt: %v", err)
	}
	return receipt
}

func TestReceiptShapeEvents(t *testing.T) {
	receipt := mustParse(t, `{
		"transactionHash": "0x1",
		"events": [{"event": "CourseCreated", "args": {"courseId": "5"}}]
	}`)

	if receipt.Shape() != ShapeEvents {
		t.Fatalf("shape = %s, want events", receipt.Shape())
	}
	ev := receipt.FindEvent("CourseCreated")
	if ev == nil {
		t.Fatal("event not found")
	}
	if ev.Args["courseId"] != "5" {
		t.Fatalf("courseId = %q", ev.Args["courseId"])
	}
	if receipt.FindEvent("CertificateIssued") != nil {
		t.Fatal("unexpected event match")
	}
	if !receipt.StatusOK() {
		t.Fatal("receipt with events implies success")
	}
}

func TestReceiptShapeLogs(t *testing.T) {
	topic := EventTopic("CourseCreated(uint256,address,string,uint256)")
	receipt := mustParse(t, `{
		"transactionHash": "0x2",
		"logs": [
			{"address": "0xaa", "topics": ["0xdead"], "data": "0x"},
			{"address": "0xaa", "topics": ["`+topic+`", "0x0000000000000000000000000000000000000000000000000000000000000009"], "data": "0x"}
		]
	}`)

	if receipt.Shape() != ShapeLogs {
		t.Fatalf("shape = %s, want logs", receipt.Shape())
	}
	entry := receipt.FindLogByTopic(topic)
	if entry == nil {
		t.Fatal("log not found by topic")
	}
	id, err := ParseHexQuantity(entry.Topics[1])
	if err != nil || id != 9 {
		t.Fatalf("decoded id = %d err = %v, want 9", id, err)
	}
}

func TestReceiptShapeStatusOnly(t *testing.T) {
	for _, raw := range []string{
		`{"transactionHash": "0x3", "status": 1}`,
		`{"transactionHash": "0x3", "status": "0x1"}`,
		`{"transactionHash": "0x3", "status": "1"}`,
	} {
		receipt := mustParse(t, raw)
		if receipt.Shape() != ShapeStatusOnly {
			t.Errorf("%s: shape = %s, want status-only", raw, receipt.Shape())
		}
		if !receipt.StatusOK() {
			t.Errorf("%s: expected StatusOK", raw)
		}
	}

	failed := mustParse(t, `{"transactionHash": "0x3", "status": "0x0"}`)
	if failed.StatusOK() {
		t.Fatal("status 0x0 must not be OK")
	}
}

func TestReceiptShapeUnknown(t *testing.T) {
	receipt := mustParse(t, `{"transactionHash": "0x4"}`)
	if receipt.Shape() != ShapeUnknown {
		t.Fatalf("shape = %s, want unknown", receipt.Shape())
	}
	if receipt.StatusOK() {
		t.Fatal("unknown shape without events must not be OK")
	}
}

func TestParseReceiptRejectsNonObject(t *testing.T) {
	if _, err := ParseReceipt(json.RawMessage(`"0xabc"`)); err == nil {
		t.Fatal("expected error for non-object receipt")
	}
}
