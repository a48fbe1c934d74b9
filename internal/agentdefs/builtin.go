package agentdefs

import "github.com/harun/coda/pkg/agentrunner"

// builtinSpecs returns the agent types available without any user
// configuration.
func builtinSpecs() map[string]agentrunner.Spec {
	return map[string]agentrunner.Spec{
		"explore": {
			Name:        "explore",
			Description: "Read-only exploration of the workspace",
			Color:       "cyan",
			AllowTools:  []string{"read_file", "glob", "grep"},
			Instructions: "You are an exploration agent. Investigate the workspace using " +
				"read-only tools and report what you find. Be concise and cite file paths.",
		},
		"plan": {
			Name:        "plan",
			Description: "Draft a change plan without touching the workspace",
			Color:       "yellow",
			Plan:        true,
			AllowTools:  []string{"read_file", "glob", "grep", "write_file", "edit_file"},
			Instructions: "You are a planning agent. Work out the changes the task needs and " +
				"propose them through the editing tools. Nothing you do is applied; your " +
				"proposals are collected into a plan for review.",
		},
		"general": {
			Name:        "general",
			Description: "General-purpose task execution",
			Color:       "green",
			Instructions: "You are a capable software engineering agent. Complete the task " +
				"using the available tools, then summarize what you did.",
		},
	}
}
