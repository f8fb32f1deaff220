package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tsn-sim/tsn-sim/sim"
)

// External runs an out-of-process solver. The input is written as JSON to a
// temporary file and the solver is started as
//
//	Command Args... [Script] --input <in.json> --output <out.json>
//
// The solver writes a Document to the output path. A missing executable or
// script, a non-zero exit, or an empty result makes the engine unavailable.
type External struct {
	Command string
	Args    []string
	Script  string
	WorkDir string // parent of the per-run temp dir, "" = os.TempDir()
}

// waitDelay bounds how long a killed solver's leftover children may hold
// its output pipes open.
const waitDelay = 2 * time.Second

// Document is the solver's output file.
type Document struct {
	Output
	Infeasible bool   `json:"infeasible,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Name implements Engine.
func (e *External) Name() string { return "external" }

// Compute implements Engine.
func (e *External) Compute(ctx context.Context, in *Input) (*Output, error) {
	const op = "engine.external"
	unavailable := func(format string, args ...any) (*Output, error) {
		return nil, sim.Errorf(sim.KindEngineUnavailable, op, e.Command, format, args...)
	}

	if e.Command == "" {
		return unavailable("no solver command configured")
	}
	bin, err := exec.LookPath(e.Command)
	if err != nil {
		return unavailable("solver not found: %v", err)
	}
	if e.Script != "" {
		if _, err := os.Stat(e.Script); err != nil {
			return unavailable("solver script not found: %v", err)
		}
	}

	dir, err := os.MkdirTemp(e.WorkDir, "tsn-engine-*")
	if err != nil {
		return unavailable("creating work dir: %v", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "input.json")
	outPath := filepath.Join(dir, "output.json")
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding solver input: %w", err)
	}
	if err := os.WriteFile(inPath, data, 0o644); err != nil {
		return unavailable("writing solver input: %v", err)
	}

	args := append([]string(nil), e.Args...)
	if e.Script != "" {
		args = append(args, e.Script)
	}
	args = append(args, "--input", inPath, "--output", outPath)
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	logrus.Debugf("[engine] external: %s %s", bin, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, sim.Wrap(sim.KindEngineUnavailable, op, e.Command, ctxErr)
		}
		return unavailable("solver failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	raw, err := os.ReadFile(outPath)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(bytes.TrimSpace(raw)) == 0) {
		return unavailable("solver returned no result")
	}
	if err != nil {
		return unavailable("reading solver output: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return unavailable("decoding solver output: %v", err)
	}
	if doc.Infeasible {
		return nil, sim.Errorf(sim.KindEngineInfeasible, op, e.Command, "%s", doc.Message)
	}
	sortSchedules(doc.GateSchedules)
	return &doc.Output, nil
}
