package fswrap

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
)

var envLineRegex = regexp.MustCompile(`^(\w+)=(\S*)$`)

// Environment sources a tool setup script (SetUpFreeSurfer.sh, fsl.sh) and
// returns the environment variables it exports. The script is sourced in a
// bash subshell seeded only with the given base environment so the result
// contains the tool variables and not the caller's full environment.
func Environment(shfile string, base map[string]string) (map[string]string, error) {
	if _, err := os.Stat(shfile); err != nil {
		return nil, fmt.Errorf("'%s' is not a valid file, can't configure the tool environment: %w", shfile, err)
	}

	cmd := exec.Command("bash", "-c", fmt.Sprintf(". '%s' ; /usr/bin/printenv", shfile))
	cmd.Env = flatten(base)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("could not source '%s': %s: %w", shfile, strings.TrimSpace(stderr.String()), err)
	}

	env := make(map[string]string)
	for _, line := range strings.Split(stdout.String(), "\n") {
		// Scripts sometimes echo 'export NAME=value' lines.
		line = strings.TrimPrefix(line, "export ")
		line = strings.ReplaceAll(line, "'", "")
		match := envLineRegex.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		name, value := match[1], match[2]
		if name == "PWD" {
			continue
		}
		env[name] = value
	}
	return env, nil
}

// Concat merges two environments. Keys present in both with different values
// get the values joined with ":" (PATH-style), mirroring how the setup
// scripts of FreeSurfer and FSL are meant to stack.
func Concat(env1, env2 map[string]string) map[string]string {
	merged := make(map[string]string, len(env1)+len(env2))
	for k, v := range env1 {
		merged[k] = v
	}
	for k, v := range env2 {
		if existing, ok := merged[k]; ok {
			if existing != v {
				merged[k] = existing + ":" + v
			}
			continue
		}
		merged[k] = v
	}
	return merged
}

// flatten converts an environment map to the KEY=value slice used by exec.
// Keys are sorted so command invocations are reproducible in tests.
func flatten(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
