package buildinfo

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	bi := &debug.BuildInfo{
		GoVersion: "go1.24.0",
		Main:      debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2024-05-01T10:00:00Z"},
		},
	}

	info := BuildInfo{}.merge(bi).withDefaults()
	assert.Equal(t, "v0.3.1", info.Version)
	assert.Equal(t, "0123456789ab", info.CommitHash)
	assert.Equal(t, "2024-05-01T10:00:00Z", info.BuildDate)
	assert.Equal(t, "version v0.3.1 (0123456789ab) built on 2024-05-01T10:00:00Z with go1.24.0", info.String())

	info = BuildInfo{Version: "v1.0.0", CommitHash: "abc"}.merge(bi)
	assert.Equal(t, "v1.0.0", info.Version)
	assert.Equal(t, "abc", info.CommitHash)
}

func TestDefaults(t *testing.T) {
	info := BuildInfo{}.merge(&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}).withDefaults()
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "n/a", info.CommitHash)
	assert.Equal(t, "version dev (n/a) built on <unknown>", info.String())
}
