package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"
)

// execute runs the CLI with args and returns what the commands printed.
func execute(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	origWriter := appWriter
	appWriter = &buf
	defer func() { appWriter = origWriter }()

	argv := append([]string{"keypool"}, args...)
	if err := Execute(argv, BuildArgs{Version: "test", BuildType: "unit"}); err != nil {
		t.Fatalf("Execute(%v): %v", args, err)
	}
	return buf.String()
}

// withShutdownAfter makes commands stop on their own after d.
func withShutdownAfter(t *testing.T, d time.Duration) {
	t.Helper()
	orig := shutdownContext
	shutdownContext = func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), d)
	}
	t.Cleanup(func() { shutdownContext = orig })
}
