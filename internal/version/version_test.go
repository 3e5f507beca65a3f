package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPopulated(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Commit)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		version     string
		commit      string
		vcs         map[string]string
		wantVersion string
		wantCommit  string
	}{
		{
			name:        "ldflags win",
			version:     "v1.2.3",
			commit:      "abc",
			vcs:         map[string]string{"vcs.revision": "0123456789"},
			wantVersion: "v1.2.3",
			wantCommit:  "abc",
		},
		{
			name:        "from vcs",
			vcs:         map[string]string{"vcs.revision": "0123456789", "vcs.time": "2026-03-01T10:00:00Z"},
			wantVersion: "dev-20260301",
			wantCommit:  "0123456",
		},
		{
			name:        "dirty tree",
			version:     "v1.0.0",
			vcs:         map[string]string{"vcs.revision": "abc", "vcs.modified": "true"},
			wantVersion: "v1.0.0",
			wantCommit:  "abc-dirty",
		},
		{
			name:       "nothing known",
			wantCommit: "unknown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, c := resolve(tt.version, tt.commit, tt.vcs)
			if tt.wantVersion == "" {
				assert.True(t, strings.HasPrefix(v, "dev-"), v)
			} else {
				assert.Equal(t, tt.wantVersion, v)
			}
			assert.Equal(t, tt.wantCommit, c)
		})
	}
}

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, Commit, info.Commit)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Contains(t, info.String(), "(commit: "+Commit)
	assert.Contains(t, info.String(), runtime.GOOS+"/"+runtime.GOARCH)
}
