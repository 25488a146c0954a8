package tarik

import (
	"strings"
	"testing"
)

func TestGetVersion(t *testing.T) {
	got := GetVersion()
	if !strings.Contains(got, Version) {
		t.Errorf("GetVersion() = %q, missing %q", got, Version)
	}
	if !strings.Contains(got, GoVersion) {
		t.Errorf("GetVersion() = %q, missing go version %q", got, GoVersion)
	}
}

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	if info["version"] != Version {
		t.Errorf("version = %q, want %q", info["version"], Version)
	}
	for _, key := range []string{"commit", "build_date", "go_version"} {
		if info[key] == "" {
			t.Errorf("GetVersionInfo() missing %q", key)
		}
	}
}
