package handler

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type recorder struct {
	name string
	got  *[]string
}

func (r recorder) Handle(data string, respond Respond) {
	*r.got = append(*r.got, r.name+":"+data)
	respond(r.name)
}

func TestResolveFallsBackToDefault(t *testing.T) {
	var calls []string
	reg := NewRegistry(recorder{name: "default", got: &calls})
	reg.Register("echo", recorder{name: "echo", got: &calls})

	tests := []struct {
		name      string
		want      string
		wantFound bool
	}{
		{"", "default", false},
		{"missing", "default", false},
		{"echo", "echo", true},
	}
	for _, tt := range tests {
		h, found := reg.Resolve(tt.name)
		if found != tt.wantFound {
			t.Fatalf("%q: found = %v", tt.name, found)
		}
		var resp string
		h.Handle("x", func(d string) { resp = d })
		if resp != tt.want {
			t.Fatalf("%q: routed to %s want %s", tt.name, resp, tt.want)
		}
	}
}

func TestRegisterLastWinsAndIgnoresNil(t *testing.T) {
	var calls []string
	reg := NewRegistry(nil)
	reg.Register("h", recorder{name: "one", got: &calls})
	reg.Register("h", recorder{name: "two", got: &calls})
	reg.Register("h", nil)

	h, _ := reg.Resolve("h")
	h.Handle("d", func(string) {})
	if len(calls) != 1 || calls[0] != "two:d" {
		t.Fatalf("calls = %v", calls)
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "h" {
		t.Fatalf("names = %v", names)
	}
}

func TestSetDefault(t *testing.T) {
	reg := NewRegistry(nil)
	var got string
	reg.SetDefault(Func(func(data string, respond Respond) { got = data }))
	reg.SetDefault(nil)
	h, _ := reg.Resolve("")
	h.Handle("ping", nil)
	if got != "ping" {
		t.Fatalf("got %q", got)
	}
}

func TestDefaultHandler(t *testing.T) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	d := Default{Log: zerolog.New(&buf).Level(zerolog.InfoLevel)}
	var resp string
	d.Handle("secret page data", func(s string) { resp = s })
	if resp != DefaultResponse {
		t.Fatalf("resp = %q", resp)
	}
	if buf.Len() != 0 {
		t.Fatalf("default handler logged at info: %s", buf.String())
	}

	buf.Reset()
	d.Log = zerolog.New(&buf).Level(zerolog.DebugLevel)
	d.Handle("hello", nil)
	if !strings.Contains(buf.String(), `"bytes":5`) || strings.Contains(buf.String(), "hello") {
		t.Fatalf("debug log = %s", buf.String())
	}

	buf.Reset()
	d.Log = zerolog.New(&buf).Level(zerolog.TraceLevel)
	d.Handle("hello", nil)
	if !strings.Contains(buf.String(), `"data":"hello"`) {
		t.Fatalf("trace log = %s", buf.String())
	}
}
