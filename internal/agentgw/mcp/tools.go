package mcp

import (
	"sort"

	"interactworld.ai/internal/protocol"
)

const (
	toolGetStatus  = "interactworld.get_status"
	toolGetTarget  = "interactworld.get_target"
	toolGetEvents  = "interactworld.get_events"
	toolBegin      = "interactworld.begin"
	toolEnd        = "interactworld.end"
	toolMove       = "interactworld.move"
	toolDisconnect = "interactworld.disconnect"
)

type toolDef struct {
	description string
	schema      map[string]any
	// cmd is the CMD kind sent for command tools.
	cmd string
}

var noArgs = map[string]any{"type": "object", "properties": map[string]any{}, "additionalProperties": false}

var targetArg = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"target_id": map[string]any{"type": "string", "description": "Prop id; empty acts on the current target."},
	},
	"additionalProperties": false,
}

var tools = map[string]toolDef{
	toolGetStatus: {
		description: "Connection state, agent id, world parameters, current target and engaged props.",
		schema:      noArgs,
	},
	toolGetTarget: {
		description: "The interactable the agent currently faces, optionally waiting for it to change.",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"wait_change": map[string]any{"type": "boolean"},
				"timeout_ms":  map[string]any{"type": "integer", "minimum": 0},
			},
			"additionalProperties": false,
		},
	},
	toolGetEvents: {
		description: "TARGET, INTERACTION and ERROR messages received after since_cursor.",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"since_cursor": map[string]any{"type": "integer", "minimum": 0},
				"limit":        map[string]any{"type": "integer", "minimum": 0},
			},
			"additionalProperties": false,
		},
	},
	toolBegin: {
		description: "Begin interacting with a prop.",
		schema:      targetArg,
		cmd:         protocol.CmdBegin,
	},
	toolEnd: {
		description: "End an open interaction.",
		schema:      targetArg,
		cmd:         protocol.CmdEnd,
	},
	toolMove: {
		description: "Set the agent's position and/or yaw in degrees.",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pos": map[string]any{"type": "array", "items": map[string]any{"type": "number"}, "minItems": 3, "maxItems": 3},
				"yaw": map[string]any{"type": "number"},
			},
			"additionalProperties": false,
		},
		cmd: protocol.CmdMove,
	},
	toolDisconnect: {
		description: "Drop the world connection until the next tool call. The agent leaves the world.",
		schema:      noArgs,
	},
}

func toolsList() []map[string]any {
	names := make([]string, 0, len(tools))
	for n := range tools {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]map[string]any, 0, len(names))
	for _, n := range names {
		d := tools[n]
		out = append(out, map[string]any{
			"name":        n,
			"description": d.description,
			"inputSchema": d.schema,
		})
	}
	return out
}
