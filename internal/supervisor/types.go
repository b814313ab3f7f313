// Package supervisor loads and checks the declarative process list that a
// process manager uses to keep the AI-employee agents running. Nothing here
// starts processes.
package supervisor

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ecosystem is the whole supervision file.
type Ecosystem struct {
	Apps   []App                   `yaml:"apps" json:"apps"`
	Deploy map[string]DeployTarget `yaml:"deploy,omitempty" json:"deploy,omitempty"`
}

// App is one supervised process and its restart policy.
type App struct {
	Name             string            `yaml:"name" json:"name"`
	Script           string            `yaml:"script" json:"script"`
	Interpreter      string            `yaml:"interpreter,omitempty" json:"interpreter,omitempty"`
	Instances        int               `yaml:"instances,omitempty" json:"instances,omitempty"`
	ExecMode         string            `yaml:"exec_mode,omitempty" json:"exec_mode,omitempty"`
	AutoRestart      *bool             `yaml:"autorestart,omitempty" json:"autorestart,omitempty"`
	Watch            bool              `yaml:"watch,omitempty" json:"watch,omitempty"`
	MaxMemoryRestart string            `yaml:"max_memory_restart,omitempty" json:"max_memory_restart,omitempty"`
	MinUptime        string            `yaml:"min_uptime,omitempty" json:"min_uptime,omitempty"`
	MaxRestarts      int               `yaml:"max_restarts,omitempty" json:"max_restarts,omitempty"`
	RestartDelayMS   int               `yaml:"restart_delay,omitempty" json:"restart_delay,omitempty"`
	Env              map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	ErrorFile        string            `yaml:"error_file,omitempty" json:"error_file,omitempty"`
	OutFile          string            `yaml:"out_file,omitempty" json:"out_file,omitempty"`
	LogDateFormat    string            `yaml:"log_date_format,omitempty" json:"log_date_format,omitempty"`
	MergeLogs        bool              `yaml:"merge_logs,omitempty" json:"merge_logs,omitempty"`
}

// DeployTarget describes a remote deployment environment.
type DeployTarget struct {
	User       string            `yaml:"user" json:"user"`
	Host       []string          `yaml:"host" json:"host"`
	Ref        string            `yaml:"ref" json:"ref"`
	Repo       string            `yaml:"repo" json:"repo"`
	Path       string            `yaml:"path" json:"path"`
	PostDeploy string            `yaml:"post-deploy,omitempty" json:"post-deploy,omitempty"`
	Env        map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// Restarts reports whether the app is restarted on exit. Unset means yes.
func (a App) Restarts() bool {
	return a.AutoRestart == nil || *a.AutoRestart
}

// InstanceCount returns the configured instances, at least one.
func (a App) InstanceCount() int {
	if a.Instances < 1 {
		return 1
	}
	return a.Instances
}

// MemoryLimit parses MaxMemoryRestart. Zero means no limit.
func (a App) MemoryLimit() (int64, error) {
	if a.MaxMemoryRestart == "" {
		return 0, nil
	}
	return ParseMemorySize(a.MaxMemoryRestart)
}

// MinUptimeDuration parses MinUptime. A bare number is milliseconds.
func (a App) MinUptimeDuration() (time.Duration, error) {
	if a.MinUptime == "" {
		return 0, nil
	}
	if ms, err := strconv.Atoi(a.MinUptime); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(a.MinUptime)
	if err != nil {
		return 0, fmt.Errorf("invalid min_uptime %q", a.MinUptime)
	}
	return d, nil
}

// RestartDelay returns the fixed delay between restarts.
func (a App) RestartDelay() time.Duration {
	return time.Duration(a.RestartDelayMS) * time.Millisecond
}

// ParseMemorySize parses sizes such as 500M, 1G, 512K or plain bytes.
func ParseMemorySize(s string) (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, "B")

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(v, "K"):
		multiplier = 1 << 10
	case strings.HasSuffix(v, "M"):
		multiplier = 1 << 20
	case strings.HasSuffix(v, "G"):
		multiplier = 1 << 30
	}
	if multiplier > 1 {
		v = v[:len(v)-1]
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid memory size %q", s)
	}
	return n * multiplier, nil
}
