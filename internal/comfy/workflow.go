// Package comfy drives the upstream ComfyUI API: workflow templating,
// input-image upload, prompt queueing, and the per-run event socket.
package comfy

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chameflow/internal/protocol"
)

// Workflow is a ComfyUI workflow graph in API format: node ID to node
// object. Nodes are kept as raw maps so fields this package does not touch
// survive the round trip back to the backend.
type Workflow map[string]map[string]any

// Node titles recognized by ApplySettings. Workflow authors opt nodes into
// templating by setting _meta.title.
const (
	titlePrompt         = "user_prompt"
	titleNegativePrompt = "user_negative_prompt"
	titleSize           = "user_size"
	titleSeed           = "user_seed"
	titleInputImage     = "user_input_image"
	titleRMBGSettings   = "user_rmbg_settings"
)

// maxRandomSeed bounds the seed drawn when a job requests a random one.
const maxRandomSeed = int64(1e14)

// LoadWorkflow reads the named workflow graph from dir. The name is reduced
// to its base name and ".json" is appended when missing, so a caller can
// pass either "flux_dev" or "flux_dev.json".
func LoadWorkflow(dir, name string) (Workflow, error) {
	safe := filepath.Base(strings.TrimSpace(name))
	if safe == "." || safe == string(filepath.Separator) {
		return nil, fmt.Errorf("comfy: invalid workflow name %q", name)
	}
	if !strings.HasSuffix(safe, ".json") {
		safe += ".json"
	}
	data, err := os.ReadFile(filepath.Join(dir, safe))
	if err != nil {
		return nil, fmt.Errorf("comfy: load workflow %s: %w", safe, err)
	}
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("comfy: parse workflow %s: %w", safe, err)
	}
	return wf, nil
}

// ListWorkflows returns the workflow file names available in dir, sorted.
func ListWorkflows(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("comfy: list workflows: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ApplySettings rewrites the inputs of nodes selected by _meta.title with
// the job's parameters and returns the seed actually used. When the job
// carries no explicit seed a random one in [1, 1e14] is drawn.
func ApplySettings(wf Workflow, job protocol.Job) int64 {
	seed := int64(0)
	if job.Seed != nil {
		seed = *job.Seed
	} else {
		seed = rand.Int63n(maxRandomSeed) + 1
	}

	for _, node := range wf {
		inputs := nodeInputs(node)
		if inputs == nil {
			continue
		}
		switch nodeTitle(node) {
		case titlePrompt:
			if _, ok := inputs["text"]; ok {
				inputs["text"] = job.Prompt
			}
		case titleNegativePrompt:
			if _, ok := inputs["text"]; ok {
				inputs["text"] = job.NegativePrompt
			}
		case titleSize:
			if _, ok := inputs["width"]; ok {
				inputs["width"] = job.Width
			}
			if _, ok := inputs["height"]; ok {
				inputs["height"] = job.Height
			}
		case titleSeed:
			if _, ok := inputs["seed"]; ok {
				inputs["seed"] = seed
			} else if _, ok := inputs["noise_seed"]; ok {
				inputs["noise_seed"] = seed
			}
		case titleInputImage:
			if _, ok := inputs["image"]; ok && job.InputImage != "" {
				inputs["image"] = job.InputImage
			}
		case titleRMBGSettings:
			if job.Model != "" {
				inputs["model"] = job.Model
			}
			if job.Sensitivity != nil {
				inputs["sensitivity"] = *job.Sensitivity
			}
		}
	}
	return seed
}

func nodeTitle(node map[string]any) string {
	meta, ok := node["_meta"].(map[string]any)
	if !ok {
		return ""
	}
	title, _ := meta["title"].(string)
	return title
}

func nodeInputs(node map[string]any) map[string]any {
	inputs, _ := node["inputs"].(map[string]any)
	return inputs
}
