package render

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/stentech/gerberstack/pkg/layer"
)

//go:embed scripts/stackup.js
var stackupScript []byte

var safeExt = regexp.MustCompile(`^\.[a-z0-9]{1,16}$`)

// waitDelay bounds how long a cancelled render waits for node's pipes to close.
const waitDelay = 2 * time.Second

// NodeRenderer renders by running pcb-stackup under node.
//
// Each call gets its own job directory holding the layer files, the job
// description and (unless Script is set) a copy of the embedded helper script.
// The directory is removed when Render returns, whatever the outcome.
type NodeRenderer struct {
	// Node is the node executable. Defaults to "node" on PATH.
	Node string

	// Script is an on-disk helper script to run instead of the embedded one.
	Script string

	// NodePath is exported as NODE_PATH so the script can resolve pcb-stackup
	// from a global or vendored node_modules.
	NodePath string

	// WorkDir is the parent of job directories. Defaults to os.TempDir().
	WorkDir string

	Logger *log.Logger
}

type nodeJob struct {
	ID     string         `json:"id"`
	Layers []nodeJobLayer `json:"layers"`
}

type nodeJobLayer struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// Name implements the optional naming interface used by [Name].
func (r *NodeRenderer) Name() string { return "node" }

// Render writes the job to disk and runs the helper script.
func (r *NodeRenderer) Render(ctx context.Context, layers []Layer, opts Options) (*Stackup, error) {
	node := r.Node
	if node == "" {
		node = "node"
	}
	if _, err := exec.LookPath(node); err != nil {
		return nil, fmt.Errorf("node renderer requires %s on PATH: %w", node, err)
	}

	dir, err := os.MkdirTemp(r.WorkDir, "gerberstack-"+uuid.NewString()+"-")
	if err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			r.logger().Warn("failed to remove job dir", "dir", dir, "err", err)
		}
	}()

	jobPath, script, err := r.writeJob(dir, layers, opts)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, node, script, jobPath)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	cmd.Env = os.Environ()
	if r.NodePath != "" {
		cmd.Env = append(cmd.Env, "NODE_PATH="+r.NodePath)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger().Debug("running pcb-stackup", "layers", len(layers), "dir", dir)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pcb-stackup: %w", ctx.Err())
		}
		return nil, fmt.Errorf("pcb-stackup: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out Stackup
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("decode pcb-stackup output: %w", err)
	}
	return &out, nil
}

// writeJob materializes the layers and job description inside dir and returns
// the job file and script paths.
func (r *NodeRenderer) writeJob(dir string, layers []Layer, opts Options) (string, string, error) {
	job := nodeJob{ID: opts.BoardID, Layers: make([]nodeJobLayer, 0, len(layers))}
	for i, l := range layers {
		p := filepath.Join(dir, diskName(i, l.Filename))
		if err := writeLayer(p, l.Content); err != nil {
			return "", "", fmt.Errorf("write layer %s: %w", l.Filename, err)
		}
		job.Layers = append(job.Layers, nodeJobLayer{Filename: l.Filename, Path: p})
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", "", err
	}
	jobPath := filepath.Join(dir, "job.json")
	if err := os.WriteFile(jobPath, data, 0o600); err != nil {
		return "", "", fmt.Errorf("write job: %w", err)
	}

	script := r.Script
	if script == "" {
		script = filepath.Join(dir, "stackup.js")
		if err := os.WriteFile(script, stackupScript, 0o600); err != nil {
			return "", "", fmt.Errorf("write script: %w", err)
		}
	}
	return jobPath, script, nil
}

// diskName is the job-local file name of the i-th layer. Display names travel
// in job.json only, so any name the aggregator accepts can be rendered.
func diskName(i int, filename string) string {
	ext := layer.Ext(filename)
	if !safeExt.MatchString(ext) {
		ext = ""
	}
	return fmt.Sprintf("layer-%03d%s", i, ext)
}

func writeLayer(path string, content io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if content != nil {
		if _, err := io.Copy(f, content); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

func (r *NodeRenderer) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}
