package supervisor

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// ValidationError lists every problem found in a supervision file.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid process configuration:\n  - %s", strings.Join(e.Problems, "\n  - "))
}

// Load reads and validates the supervision file at path.
func Load(path string) (*Ecosystem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a supervision document.
func Parse(data []byte) (*Ecosystem, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if raw == nil {
		return nil, &ValidationError{Problems: []string{"document is empty"}}
	}

	problems, err := validateStructure(raw)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	var eco Ecosystem
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&eco); err != nil {
		return nil, fmt.Errorf("failed to decode process configuration: %w", err)
	}

	if problems := eco.check(); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return &eco, nil
}

// check applies the rules the schema cannot express.
func (e *Ecosystem) check() []string {
	var problems []string
	seen := make(map[string]bool, len(e.Apps))
	logFiles := make(map[string]string)

	for _, app := range e.Apps {
		if seen[app.Name] {
			problems = append(problems, fmt.Sprintf("apps: duplicate name %q", app.Name))
		}
		seen[app.Name] = true

		if _, err := app.MemoryLimit(); err != nil {
			problems = append(problems, fmt.Sprintf("apps.%s: %v", app.Name, err))
		}
		if _, err := app.MinUptimeDuration(); err != nil {
			problems = append(problems, fmt.Sprintf("apps.%s: %v", app.Name, err))
		}
		if app.ExecMode != "cluster" && app.Instances > 1 {
			problems = append(problems, fmt.Sprintf("apps.%s: %d instances require exec_mode cluster", app.Name, app.Instances))
		}
		for _, f := range []string{app.ErrorFile, app.OutFile} {
			if f == "" {
				continue
			}
			if owner, taken := logFiles[f]; taken && owner != app.Name {
				problems = append(problems, fmt.Sprintf("apps.%s: log file %s already used by %s", app.Name, f, owner))
			}
			logFiles[f] = app.Name
		}
	}
	return problems
}

// WriteSummary prints one row per app and one per deploy target.
func (e *Ecosystem) WriteSummary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSCRIPT\tMODE\tINSTANCES\tRESTART\tMEMORY\tMIN UPTIME\tMAX RESTARTS\tDELAY")
	for _, app := range e.Apps {
		mode := app.ExecMode
		if mode == "" {
			mode = "fork"
		}
		memory := app.MaxMemoryRestart
		if memory == "" {
			memory = "-"
		}
		uptime, _ := app.MinUptimeDuration()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%s\t%v\t%d\t%v\n",
			app.Name, app.Script, mode, app.InstanceCount(), app.Restarts(),
			memory, uptime, app.MaxRestarts, app.RestartDelay())
	}

	if len(e.Deploy) > 0 {
		envs := make([]string, 0, len(e.Deploy))
		for env := range e.Deploy {
			envs = append(envs, env)
		}
		sort.Strings(envs)

		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "DEPLOY\tHOSTS\tREF\tPATH")
		for _, env := range envs {
			target := e.Deploy[env]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", env, strings.Join(target.Host, ","), target.Ref, target.Path)
		}
	}
	return tw.Flush()
}
