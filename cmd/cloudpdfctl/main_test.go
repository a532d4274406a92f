package main

import (
	"bytes"
	"testing"
)

func TestRootCmdRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"ingest", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %s subcommand, got %v (%v)", name, cmd, err)
		}
	}
}

func TestIngestRequiresFiles(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"ingest"})

	if err := root.Execute(); err == nil {
		t.Fatalf("expected an error when no files are given")
	}
}
