// Package config loads process settings through viper and turns the agent
// roster file into configured agents.
//
// Settings come from an optional agentrelay.yaml, AGENTRELAY_* environment
// variables and command line flags bound by the CLI. The roster file lists
// agents by name:
//
//	agents:
//	  Zeus:
//	    model: qwen3-coder
//	    description: Coordinates the other agents
//	    prompts: [zeus.md]
//	    seed_prompts_file: zeus.json
//	    tools: [file_tools.read_file]
//	    inference_config: {max_tokens: 4096, temperature: 0.7}
//	    summarization_config:
//	      summarization_threshold: 0.65
//	      char_to_token_ratio: 4
//	      percentage_to_summarize: 0.4
//	    refinement_config: {enabled: true, max_iterations: 3}
package config
