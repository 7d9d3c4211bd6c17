//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	env, cleanup, err := startEnv(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up integration env: %v\n", err)
		cleanup()
		os.Exit(1)
	}
	testEnv = env

	code := m.Run()
	cleanup()
	os.Exit(code)
}
