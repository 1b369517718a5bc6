package message

import (
	"errors"
	"testing"
)

func TestRoundTripAllFieldCombinations(t *testing.T) {
	// every subset of the five fields
	for mask := 0; mask < 32; mask++ {
		var m Message
		if mask&1 != 0 {
			m.Data = "d"
		}
		if mask&2 != 0 {
			m.ResponseID = "r1"
		}
		if mask&4 != 0 {
			m.ResponseData = `{"x":"y/z"}`
		}
		if mask&8 != 0 {
			m.CallbackID = "GO_CB_1_2"
		}
		if mask&16 != 0 {
			m.HandlerName = "h'1"
		}
		s, err := Encode(m)
		if err != nil {
			t.Fatalf("encode %d: %v", mask, err)
		}
		got, err := Decode(s)
		if err != nil {
			t.Fatalf("decode %d: %v", mask, err)
		}
		if got != m {
			t.Fatalf("mask %d: got %+v want %+v", mask, got, m)
		}
	}
}

func TestEncodeOmitsEmptyFields(t *testing.T) {
	s, err := Encode(Message{ResponseID: "JAVA_CB_1", ResponseData: "pong"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if want := `{"responseId":"JAVA_CB_1","responseData":"pong"}`; s != want {
		t.Fatalf("got %s want %s", s, want)
	}
}

func TestDecodeNullAsAbsent(t *testing.T) {
	m, err := Decode(`{"data":"ping","callbackId":"JAVA_CB_1","handlerName":null,"responseId":null}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Data != "ping" || m.CallbackID != "JAVA_CB_1" || m.HandlerName != "" || m.ResponseID != "" {
		t.Fatalf("unexpected message: %+v", m)
	}
	if m.Role() != RoleRequest {
		t.Fatalf("role = %s", m.Role())
	}
}

func TestBatchRoundTripPreservesOrder(t *testing.T) {
	in := []Message{
		{Data: "a"},
		{ResponseID: "x", ResponseData: "b"},
		{Data: "c", CallbackID: "cb", HandlerName: "h"},
	}
	s, err := EncodeBatch(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeBatch(s)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d", len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("index %d: got %+v want %+v", i, out[i], in[i])
		}
	}
}

func TestEncodeBatchNil(t *testing.T) {
	s, err := EncodeBatch(nil)
	if err != nil || s != "[]" {
		t.Fatalf("got %q, %v", s, err)
	}
}

func TestDecodeBatchMalformed(t *testing.T) {
	for _, in := range []string{
		`[{"data":"a"},`,
		`{"data":"a"}`,
		`[{"data":"a"},{"data":1}]`,
		`not json`,
	} {
		msgs, err := DecodeBatch(in)
		if msgs != nil {
			t.Fatalf("%q: expected no messages, got %v", in, msgs)
		}
		var mbe *MalformedBatchError
		if !errors.As(err, &mbe) {
			t.Fatalf("%q: expected MalformedBatchError, got %v", in, err)
		}
		if mbe.Input != in || mbe.Unwrap() == nil {
			t.Fatalf("%q: bad error contents %+v", in, mbe)
		}
	}
}

func TestDecodeBatchBlank(t *testing.T) {
	msgs, err := DecodeBatch("  ")
	if err != nil || len(msgs) != 0 {
		t.Fatalf("got %v, %v", msgs, err)
	}
}

func TestRole(t *testing.T) {
	tests := []struct {
		m    Message
		want Role
	}{
		{Message{Data: "x"}, RoleNotification},
		{Message{Data: "x", CallbackID: "c"}, RoleRequest},
		{Message{ResponseID: "r"}, RoleResponse},
		{Message{ResponseID: "r", CallbackID: "c"}, RoleResponse},
	}
	for _, tt := range tests {
		if got := tt.m.Role(); got != tt.want {
			t.Errorf("%+v: got %s want %s", tt.m, got, tt.want)
		}
	}
}
