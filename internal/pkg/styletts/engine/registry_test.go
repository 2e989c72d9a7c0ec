package engine

import "testing"

type nopEngine struct{ q *Queue }

func (e *nopEngine) Synthesize(string) bool { return false }
func (e *nopEngine) StreamInfo() StreamInfo { return DefaultStreamInfo() }
func (e *nopEngine) Queue() *Queue          { return e.q }
func (e *nopEngine) Close() error           { return nil }

func TestRegisterAndNew(t *testing.T) {
	Register("test-nop", func(cfg EngineConfig) (Engine, error) {
		if cfg.Backend != "test-nop" {
			t.Errorf("factory got backend %q", cfg.Backend)
		}
		return &nopEngine{q: NewQueue()}, nil
	})

	if !IsRegistered("test-nop") {
		t.Fatal("backend not registered")
	}

	eng, err := New("test-nop", EngineConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer eng.Close()

	info := eng.StreamInfo()
	if info.SampleRate != 24000 || info.Channels != 1 || info.Format != FormatS16LE {
		t.Errorf("StreamInfo = %+v", info)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New("does-not-exist", EngineConfig{}); err == nil {
		t.Error("unknown backend accepted")
	}
}

func TestRegisterNilFactoryPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("nil factory did not panic")
		}
	}()
	Register("test-nil", nil)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("test-dup", func(EngineConfig) (Engine, error) { return &nopEngine{q: NewQueue()}, nil })
	defer func() {
		if recover() == nil {
			t.Error("duplicate registration did not panic")
		}
	}()
	Register("test-dup", func(EngineConfig) (Engine, error) { return &nopEngine{q: NewQueue()}, nil })
}

func TestListBackendsContainsRegistered(t *testing.T) {
	Register("test-list", func(EngineConfig) (Engine, error) { return &nopEngine{q: NewQueue()}, nil })
	found := false
	for _, name := range ListBackends() {
		if name == "test-list" {
			found = true
		}
	}
	if !found {
		t.Error("registered backend missing from list")
	}
}
