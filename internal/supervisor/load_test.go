package supervisor

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadShippedConfig(t *testing.T) {
	eco, err := Load("../../deploy/processes.yaml")
	require.NoError(t, err)

	require.Len(t, eco.Apps, 8)
	byName := map[string]App{}
	for _, app := range eco.Apps {
		byName[app.Name] = app
	}

	api := byName["api-server"]
	assert.Equal(t, "cluster", api.ExecMode)
	assert.Equal(t, 2, api.InstanceCount())
	assert.Equal(t, "8000", api.Env["PORT"])

	manager := byName["manager-agent"]
	limit, err := manager.MemoryLimit()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<30), limit)
	uptime, err := manager.MinUptimeDuration()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, uptime)
	assert.Equal(t, 4*time.Second, manager.RestartDelay())
	assert.True(t, manager.Restarts())

	prod, ok := eco.Deploy["production"]
	require.True(t, ok)
	assert.Equal(t, []string{"your-server-ip"}, prod.Host)
	assert.Contains(t, prod.PostDeploy, "fte processes check")
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"no apps", "deploy: {}\n", "apps"},
		{"missing script", "apps:\n  - name: a\n", "script"},
		{"bad exec mode", "apps:\n  - name: a\n    script: a.py\n    exec_mode: pool\n", "exec_mode"},
		{"unquoted env number", "apps:\n  - name: a\n    script: a.py\n    env:\n      PORT: 8000\n", "PORT"},
		{"unknown key", "apps:\n  - name: a\n    script: a.py\n    restart_policy: always\n", "restart_policy"},
		{"bad memory", "apps:\n  - name: a\n    script: a.py\n    max_memory_restart: lots\n", "max_memory_restart"},
		{"deploy without host", "apps:\n  - name: a\n    script: a.py\ndeploy:\n  prod:\n    user: u\n    ref: r\n    repo: x\n    path: /p\n", "host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), err.Error())
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseSemanticChecks(t *testing.T) {
	doc := `
apps:
  - name: worker
    script: w.py
    min_uptime: soon
    error_file: Logs/shared.log
  - name: worker
    script: w2.py
    instances: 3
    error_file: Logs/shared.log
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	joined := strings.Join(verr.Problems, "\n")
	assert.Contains(t, joined, `duplicate name "worker"`)
	assert.Contains(t, joined, `invalid min_uptime "soon"`)
	assert.Contains(t, joined, "require exec_mode cluster")
	assert.NotContains(t, joined, "already used")
}

func TestParseLogFileCollision(t *testing.T) {
	doc := `
apps:
  - name: a
    script: a.py
    out_file: Logs/out.log
  - name: b
    script: b.py
    out_file: Logs/out.log
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log file Logs/out.log already used by a")
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("apps: [\n"))
	assert.ErrorContains(t, err, "failed to parse YAML")

	_, err = Parse([]byte(""))
	assert.ErrorContains(t, err, "document is empty")
}

func TestParseMemorySize(t *testing.T) {
	tests := map[string]int64{
		"500M":  500 << 20,
		"1G":    1 << 30,
		"512k":  512 << 10,
		"2GB":   2 << 30,
		"65536": 65536,
	}
	for in, want := range tests {
		got, err := ParseMemorySize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "M", "-1G", "1T", "0"} {
		_, err := ParseMemorySize(bad)
		assert.Error(t, err, bad)
	}
}

func TestAppDefaults(t *testing.T) {
	off := false
	app := App{Name: "x", Script: "x.py", MinUptime: "1500"}

	assert.Equal(t, 1, app.InstanceCount())
	assert.True(t, app.Restarts())
	d, err := app.MinUptimeDuration()
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)
	limit, err := app.MemoryLimit()
	require.NoError(t, err)
	assert.Zero(t, limit)

	app.AutoRestart = &off
	assert.False(t, app.Restarts())
}

func TestWriteSummary(t *testing.T) {
	eco, err := Load("../../deploy/processes.yaml")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, eco.WriteSummary(&buf))

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "api-server")
	assert.Contains(t, out, "cluster")
	assert.Contains(t, out, "DEPLOY")
	assert.Contains(t, out, "production")
	assert.Equal(t, 1+len(eco.Apps)+2+len(eco.Deploy), strings.Count(out, "\n"))
}
