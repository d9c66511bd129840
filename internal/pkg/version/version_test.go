package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetVersionString(t *testing.T) {
	oldVersion, oldCommit, oldDate := Version, Commit, Date
	defer func() { Version, Commit, Date = oldVersion, oldCommit, oldDate }()

	tests := []struct {
		name     string
		version  string
		commit   string
		date     string
		expected string
	}{
		{name: "完整注入", version: "v1.2.0", commit: "abc1234", date: "2026-10-14", expected: "v1.2.0, commit abc1234, built at 2026-10-14"},
		{name: "只注入版本", version: "v1.2.0", commit: "unknown", date: "unknown", expected: "v1.2.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Version, Commit, Date = tt.version, tt.commit, tt.date
			if tt.commit == "unknown" && (GetCommit() != "unknown" || GetBuildDate() != "unknown") {
				t.Skip("构建信息中带有 vcs 数据")
			}
			require.Equal(t, tt.expected, GetVersionString())
		})
	}
}
