package main

import "testing"

func TestIsLoopbackListenAddress(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:8090": true,
		"localhost:8090": true,
		"[::1]:8090":     true,
		"0.0.0.0:8090":   false,
		":8090":          false,
	} {
		if got := isLoopbackListenAddress(addr); got != want {
			t.Fatalf("%q: got %v want %v", addr, got, want)
		}
	}
}

func TestEnvBoolWithDefault(t *testing.T) {
	t.Setenv("IW_TEST_BOOL", "")
	if !envBoolWithDefault("IW_TEST_BOOL", true) {
		t.Fatalf("empty should fall back to default")
	}
	t.Setenv("IW_TEST_BOOL", "false")
	if envBoolWithDefault("IW_TEST_BOOL", true) {
		t.Fatalf("explicit false ignored")
	}
	t.Setenv("IW_TEST_BOOL", "maybe")
	if envBoolWithDefault("IW_TEST_BOOL", false) {
		t.Fatalf("unparsable should fall back to default")
	}
}

func TestIsProductionDeploy(t *testing.T) {
	t.Setenv("DEPLOY_ENV", " Production ")
	if !isProductionDeploy() {
		t.Fatalf("production not detected")
	}
	t.Setenv("DEPLOY_ENV", "dev")
	if isProductionDeploy() {
		t.Fatalf("dev treated as production")
	}
}
