package factory

import (
	"testing"
	"time"
)

type backend struct {
	URL     string
	Timeout time.Duration
}

type backendConf struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
	Retries int           `json:"retries"`
}

func TestRegistry_CreateDecodesConf(t *testing.T) {
	reg := NewRegistry[*backend]()
	if err := reg.Register("influx", func(conf map[string]any) (*backend, error) {
		var c backendConf
		if err := Decode(conf, &c); err != nil {
			return nil, err
		}
		return &backend{URL: c.URL, Timeout: c.Timeout}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	inst, err := reg.Create(ModuleConfig{Type: "influx", Conf: map[string]any{
		"url":     "http://influx:8086",
		"timeout": "5s",
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.URL != "http://influx:8086" || inst.Timeout != 5*time.Second {
		t.Fatalf("unexpected backend %#v", inst)
	}
}

func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry[int]()
	if err := reg.Register("memory", func(map[string]any) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("memory", func(map[string]any) (int, error) { return 2, nil }); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := reg.Register("nil", nil); err == nil {
		t.Fatal("expected nil factory error")
	}
	if _, err := reg.Create(ModuleConfig{Type: "postgres"}); err == nil {
		t.Fatal("expected unknown type error")
	}
	if got := reg.Types(); len(got) != 1 || got[0] != "memory" {
		t.Fatalf("unexpected types %v", got)
	}
}

func TestDecodeWeakTypes(t *testing.T) {
	var c backendConf
	if err := Decode(map[string]any{"retries": "3"}, &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Retries != 3 {
		t.Fatalf("expected 3 got %d", c.Retries)
	}
}
