package server

import (
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func startMiniredis(t *testing.T) string {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr.Addr()
}
