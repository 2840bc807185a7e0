package main

import (
	"bytes"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNavigateCommandRunsActions(t *testing.T) {
	out, err := execute(t, "navigate", "--embedded", "/mfe2",
		"--action", "increment", "--action", "increment", "--action", "increment", "--action", "decrement")
	if err != nil {
		t.Fatalf("navigate failed: %v\n%s", err, out)
	}

	for _, want := range []string{
		"/mfe2 -> /mfe2",
		"increment: counter: 1",
		"decrement: counter: 2",
		"  Feature2\n  counter: 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestNavigateCommandRedirectsUnknownPath(t *testing.T) {
	out, err := execute(t, "navigate", "--embedded", "/unknown", "/mfe1")
	if err != nil {
		t.Fatalf("navigate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "/unknown -> /mfe1 (redirected)") {
		t.Errorf("expected redirect, got:\n%s", out)
	}
	if !strings.Contains(out, "/mfe1 -> /mfe1 (already active)") {
		t.Errorf("expected reuse, got:\n%s", out)
	}
}

func TestNavigateCommandUnknownAction(t *testing.T) {
	if _, err := execute(t, "navigate", "--embedded", "/mfe1", "--action", "explode"); err == nil {
		t.Error("expected unknown action to fail")
	}
}

func TestRoutesCommand(t *testing.T) {
	out, err := execute(t, "routes")
	if err != nil {
		t.Fatalf("routes failed: %v", err)
	}
	if !strings.Contains(out, "* /mfe1") {
		t.Errorf("default route not marked:\n%s", out)
	}
	if !strings.Contains(out, "./Feature2Component") {
		t.Errorf("mfe2 route missing:\n%s", out)
	}
}
