package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = format
	})
	Logf("capture round %d", 3)
	if got != "capture round %d" {
		t.Errorf("custom logger saw %q", got)
	}

	// nil installs a no-op logger
	got = ""
	SetLogger(nil)
	Logf("dropped")
	if got != "" {
		t.Error("no-op logger should not reach the previous callback")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf must not be nil by default")
	}
}
