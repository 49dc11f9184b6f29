package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// TestNewRootCmd tests the root command creation.
func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "lexicrawl" {
			t.Errorf("expected use 'lexicrawl', got %q", cmd.Use)
		}
	})

	t.Run("has version", func(t *testing.T) {
		t.Parallel()
		if cmd.Version == "" {
			t.Error("expected non-empty version")
		}
	})

	t.Run("has global logging flags", func(t *testing.T) {
		t.Parallel()
		for name, shorthand := range map[string]string{"verbose": "v", "quiet": "q", "log-json": ""} {
			flag := cmd.PersistentFlags().Lookup(name)
			if flag == nil {
				t.Errorf("expected %s flag", name)
				continue
			}
			if flag.Shorthand != shorthand {
				t.Errorf("flag %s: expected shorthand %q, got %q", name, shorthand, flag.Shorthand)
			}
			if flag.DefValue != "false" {
				t.Errorf("flag %s: expected default 'false', got %q", name, flag.DefValue)
			}
		}
	})

	t.Run("has subcommands", func(t *testing.T) {
		t.Parallel()
		want := map[string]bool{"crawl": false, "runs": false, "init": false, "version": false}
		for _, sub := range cmd.Commands() {
			if _, ok := want[sub.Name()]; ok {
				want[sub.Name()] = true
			}
		}
		for name, found := range want {
			if !found {
				t.Errorf("expected subcommand %q", name)
			}
		}
	})
}

func TestGetBoolFlag(t *testing.T) {
	t.Parallel()

	t.Run("returns false when flag not defined", func(t *testing.T) {
		t.Parallel()
		cmd := &cobra.Command{Use: "test"}
		if getBoolFlag(cmd, "verbose") {
			t.Error("expected false")
		}
	})

	t.Run("reads the root persistent flag", func(t *testing.T) {
		t.Parallel()
		root := NewRootCmd()
		if err := root.PersistentFlags().Set("quiet", "true"); err != nil {
			t.Fatal(err)
		}
		child := &cobra.Command{Use: "child"}
		root.AddCommand(child)
		if !getBoolFlag(child, "quiet") {
			t.Error("expected quiet to be read from root")
		}
	})
}

func TestSetupLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		flags     map[string]string
		wantInfo  bool
		wantDebug bool
		wantJSON  bool
	}{
		{name: "default logs info", wantInfo: true},
		{name: "verbose logs debug", flags: map[string]string{"verbose": "true"}, wantInfo: true, wantDebug: true},
		{name: "quiet hides info", flags: map[string]string{"quiet": "true"}},
		{name: "json output", flags: map[string]string{"log-json": "true"}, wantInfo: true, wantJSON: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := NewRootCmd()
			for k, v := range tt.flags {
				if err := root.PersistentFlags().Set(k, v); err != nil {
					t.Fatal(err)
				}
			}
			var buf bytes.Buffer
			root.SetErr(&buf)

			logger := setupLogger(root)
			logger.Debug("debug message")
			logger.Info("info message", "password", "hunter2")

			out := buf.String()
			if got := strings.Contains(out, "info message"); got != tt.wantInfo {
				t.Errorf("info logged = %v, want %v: %q", got, tt.wantInfo, out)
			}
			if got := strings.Contains(out, "debug message"); got != tt.wantDebug {
				t.Errorf("debug logged = %v, want %v: %q", got, tt.wantDebug, out)
			}
			if got := strings.HasPrefix(out, "{"); tt.wantInfo && got != tt.wantJSON {
				t.Errorf("json = %v, want %v: %q", got, tt.wantJSON, out)
			}
			if strings.Contains(out, "hunter2") {
				t.Errorf("expected password to be masked: %q", out)
			}
		})
	}
}

// quietLogger discards everything below error level.
func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
