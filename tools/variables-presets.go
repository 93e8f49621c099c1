package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/study-rag/internal/extract"
)

type VariablesPresetsQuery struct{}

type VariablesPresetsResponse struct {
	Presets []VariablePreset `json:"presets"`
}

type VariablePreset struct {
	Name      string   `json:"name"`
	Variables []string `json:"variables"`
}

func VariablesPresetsTool() *mcp.Tool {
	inputschema, err := jsonschema.For[VariablesPresetsQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "variables-presets",
		Description: "List the built-in variable lists usable as preset in variables-extract.",
		InputSchema: inputschema,
	}
}

func VariablesPresetsToolHandler(ctx context.Context, req *mcp.CallToolRequest, query VariablesPresetsQuery, deps *Deps) (*mcp.CallToolResult, *VariablesPresetsResponse, error) {
	deps.Log.Info("variables-presets tool called")

	names := extract.PresetNames()
	presets := make([]VariablePreset, 0, len(names))
	for _, name := range names {
		vars, _ := extract.Preset(name)
		presets = append(presets, VariablePreset{Name: name, Variables: vars})
	}
	return nil, &VariablesPresetsResponse{Presets: presets}, nil
}
