package tools

import (
	"context"
	"fmt"
	"strings"
)

// ActionTool exposes a Controller to the model as a single tool whose
// "action" argument selects the operation.
type ActionTool struct {
	name        string
	description string
	controller  Controller
}

// NewActionTool 建立一個包裝 Controller 的工具
func NewActionTool(name, description string, c Controller) *ActionTool {
	return &ActionTool{
		name:        name,
		description: description,
		controller:  c,
	}
}

func (t *ActionTool) Name() string {
	return t.name
}

func (t *ActionTool) Description() string {
	return fmt.Sprintf("%s. Supported actions: %s", t.description, strings.Join(t.controller.Capabilities(), ", "))
}

func (t *ActionTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        t.controller.Capabilities(),
				"description": "要執行的動作名稱",
			},
			"params": map[string]any{
				"type":        "object",
				"description": "動作所需的參數，例如 {\"timezone\": \"Asia/Taipei\"}",
			},
		},
		"required": []string{"action"},
	}
}

func (t *ActionTool) Execute(ctx context.Context, args map[string]any) (*ToolResult, error) {
	action, ok := args["action"].(string)
	if !ok {
		return nil, fmt.Errorf("missing string parameter 'action'")
	}

	params, _ := args["params"].(map[string]any)
	if params == nil {
		params = make(map[string]any)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := t.controller.Execute(ActionRequest{
		Action: action,
		Params: params,
	})
	if err != nil {
		return nil, err
	}

	if !resp.Success {
		return TextResult("Error executing action: " + resp.Error), nil
	}

	res := TextResult(fmt.Sprintf("%v", resp.Data))
	res.Details = map[string]any{"action": action}
	return res, nil
}
