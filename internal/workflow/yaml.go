package workflow

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type fileWorkflow struct {
	Stages []fileStage `yaml:"stages"`
}

type fileStage struct {
	Name      string           `yaml:"name"`
	Inputs    []fileDescriptor `yaml:"inputs"`
	Outputs   []fileDescriptor `yaml:"outputs"`
	Options   []fileOption     `yaml:"options"`
	Algorithm string           `yaml:"algorithm"`
}

type fileDescriptor struct {
	Origin      string `yaml:"origin"`
	Description string `yaml:"description"`
	SubSpec     uint32 `yaml:"subspec"`
	Lifetime    string `yaml:"lifetime"`
}

type fileOption struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Default any    `yaml:"default"`
	Help    string `yaml:"help"`
}

/**
 * Load a workflow from a YAML file
 * @param {string} path - Path of the workflow file
 * @returns {Workflow} Stages in file order
 * @returns {error} Error if the file can't be read or decoded, or names an unknown algorithm or lifetime
 * @description
 * - The workflow is not verified here, Verify/Compile do that
 */
func LoadFile(path string) (Workflow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes a YAML workflow document.
func Parse(raw []byte) (Workflow, error) {
	var doc fileWorkflow
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}

	stages := make(Workflow, 0, len(doc.Stages))
	for _, fs := range doc.Stages {
		stage := Stage{Name: fs.Name}
		for _, d := range fs.Inputs {
			lt, err := parseLifetime(d.Lifetime)
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", fs.Name, err)
			}
			stage.Inputs = append(stage.Inputs, InputSpec{Origin: d.Origin, Description: d.Description, SubSpec: d.SubSpec, Lifetime: lt})
		}
		for _, d := range fs.Outputs {
			lt, err := parseLifetime(d.Lifetime)
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", fs.Name, err)
			}
			stage.Outputs = append(stage.Outputs, OutputSpec{Origin: d.Origin, Description: d.Description, SubSpec: d.SubSpec, Lifetime: lt})
		}
		for _, o := range fs.Options {
			stage.Options = append(stage.Options, ConfigParam{
				Name:    o.Name,
				Type:    OptionType(o.Type),
				Default: normalizeDefault(OptionType(o.Type), o.Default),
				Help:    o.Help,
			})
		}
		if fs.Algorithm != "" {
			alg, ok := LookupAlgorithm(fs.Algorithm)
			if !ok {
				return nil, fmt.Errorf("stage %s: unknown algorithm %s", fs.Name, fs.Algorithm)
			}
			stage.Algorithm = alg
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

func parseLifetime(s string) (Lifetime, error) {
	switch strings.ToLower(s) {
	case "", "timeframe":
		return Timeframe, nil
	case "condition":
		return Condition, nil
	case "qa":
		return QA, nil
	default:
		return Timeframe, fmt.Errorf("unknown lifetime %s", s)
	}
}

// normalizeDefault widens YAML integers written for float options ("1" for 1.0).
// Every other mismatch is left for Verify to report.
func normalizeDefault(t OptionType, v any) any {
	if t != OptionFloat {
		return v
	}
	if i, ok := v.(int); ok {
		return float64(i)
	}
	return v
}
