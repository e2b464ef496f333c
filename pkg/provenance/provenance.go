// Package provenance records what a pipeline run consumed and produced.
// Every run writes three JSON documents under <outdir>/logs: inputs.json,
// outputs.json and runtime.json. The runtime document carries the run
// identity, timing, host description and final status, and is written even
// when the run fails so that failed runs stay auditable.
package provenance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Record accumulates the provenance of one pipeline run.
type Record struct {
	RunID     string
	Tool      string
	Version   string
	StartTime time.Time

	inputs  map[string]interface{}
	outputs map[string]interface{}
}

// Runtime is the content of runtime.json.
type Runtime struct {
	RunID           string  `json:"run_id"`
	Tool            string  `json:"tool"`
	ToolVersion     string  `json:"tool_version,omitempty"`
	Start           string  `json:"start"`
	End             string  `json:"end"`
	DurationSeconds float64 `json:"duration_seconds"`
	Status          string  `json:"status"`
	Error           string  `json:"error,omitempty"`

	Hostname      string `json:"hostname,omitempty"`
	Platform      string `json:"platform,omitempty"`
	KernelVersion string `json:"kernel_version,omitempty"`
	CPUModel      string `json:"cpu_model,omitempty"`
	CPUCount      int    `json:"cpu_count"`
	MemoryTotal   uint64 `json:"memory_total,omitempty"`
}

// New opens a provenance record for a tool run. Version is the version of
// the wrapped tool suite, empty when unknown.
func New(tool, version string) *Record {
	return &Record{
		RunID:     uuid.NewString(),
		Tool:      tool,
		Version:   version,
		StartTime: time.Now(),
		inputs:    map[string]interface{}{},
		outputs:   map[string]interface{}{},
	}
}

// SetInput registers one run parameter.
func (r *Record) SetInput(key string, value interface{}) {
	r.inputs[key] = value
}

// SetOutput registers one run product.
func (r *Record) SetOutput(key string, value interface{}) {
	r.outputs[key] = value
}

// Write persists the three provenance documents under <outdir>/logs and
// returns the log directory. runErr, when non-nil, marks the run as failed
// in runtime.json; the documents are written either way.
func (r *Record) Write(outdir string, runErr error) (string, error) {
	logdir := filepath.Join(outdir, "logs")
	if err := os.MkdirAll(logdir, 0o755); err != nil {
		return "", fmt.Errorf("creating log directory: %w", err)
	}

	if err := writeJSON(filepath.Join(logdir, "inputs.json"), r.inputs); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(logdir, "outputs.json"), r.outputs); err != nil {
		return "", err
	}

	end := time.Now()
	rt := Runtime{
		RunID:           r.RunID,
		Tool:            r.Tool,
		ToolVersion:     r.Version,
		Start:           r.StartTime.Format(time.RFC3339),
		End:             end.Format(time.RFC3339),
		DurationSeconds: end.Sub(r.StartTime).Seconds(),
		Status:          "success",
		CPUCount:        runtime.NumCPU(),
	}
	if runErr != nil {
		rt.Status = "error"
		rt.Error = runErr.Error()
	}
	describeHost(&rt)

	if err := writeJSON(filepath.Join(logdir, "runtime.json"), rt); err != nil {
		return "", err
	}
	return logdir, nil
}

// describeHost fills in the machine description. Probe failures leave the
// fields empty rather than failing the record.
func describeHost(rt *Runtime) {
	if info, err := host.Info(); err == nil {
		rt.Hostname = info.Hostname
		rt.Platform = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
		rt.KernelVersion = info.KernelVersion
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		rt.CPUModel = infos[0].ModelName
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		rt.MemoryTotal = vmem.Total
	}
}

func writeJSON(path string, payload interface{}) error {
	data, err := json.MarshalIndent(payload, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
