package protocol

import "strings"

// Format guidelines appended to agent system prompts.
const (
	NormalResponseGuideline = "# RESPONSE GUIDELINES AND FORMAT:\n" +
		"- When you answer the user directly, write the following JSON:\n" +
		"```json\n" +
		"{\n" +
		"\t\"action\": \"NORMAL_RESPONSE\",\n" +
		"\t\"response\": \"[Your response to the user]\"\n" +
		"}\n" +
		"```\n" + guidelineFooter

	DelegationGuideline = "# DELEGATION GUIDELINES AND FORMAT:\n" +
		"- When you need to delegate a task write the following JSON:\n" +
		"```json\n" +
		"{\n" +
		"\t\"action\": \"DELEGATE_TASK\",\n" +
		"\t\"agent\": \"[Agent Name]\",\n" +
		"\t\"caller_agent\": \"[Agent Name of the agent that is delegating the task]\",\n" +
		"\t\"reason\": \"[Concise reason for delegation]\",\n" +
		"\t\"user_input\": \"[User input that triggered the delegation]\"\n" +
		"}\n" +
		"```\n" + guidelineFooter

	DelegationBackGuideline = "# DELEGATION BACK GUIDELINES AND FORMAT:\n" +
		"- When you need to return to the caller agent, write the following JSON:\n" +
		"```json\n" +
		"{\n" +
		"\t\"action\": \"DELEGATE_BACK\",\n" +
		"\t\"return_to_agent\": \"[Agent Name to return to]\",\n" +
		"\t\"return_from_agent\": \"[Agent Name returning from]\",\n" +
		"\t\"reason\": \"[Concise reason for returning to the caller agent]\",\n" +
		"\t\"success\": \"[True if the requested task was successful, False otherwise]\"\n" +
		"}\n" +
		"```\n" + guidelineFooter

	ToolsGuideline = "# TOOLS GUIDELINES AND FORMAT:\n" +
		"- When you need to use a tool, write the following JSON:\n" +
		"```json\n" +
		"{\n" +
		"\t\"action\": \"USE_TOOL\",\n" +
		"\t\"tool\": \"[Tool Name]\",\n" +
		"\t\"args\": \"[Tool arguments separated by comma. example: 'arg1=value1,arg2=value2,...']\"\n" +
		"}\n" +
		"```\n" + guidelineFooter

	RefinementGuideline = "# REFINEMENT RESPONSE GUIDELINES AND FORMAT:\n" +
		"- When you need to provide a refinement response, write the following JSON:\n" +
		"```json\n" +
		"{\n" +
		"\t\"action\": \"REFINEMENT_RESPONSE\",\n" +
		"\t\"new_plan\": \"[Your refined plan here]\",\n" +
		"\t\"done\": \"[yes or no]\",\n" +
		"\t\"score\": [0-100],\n" +
		"\t\"why\": \"[brief justification (at most 40 tokens)]\",\n" +
		"\t\"checklist\": {\n" +
		"\t\t\"objective\": [true or false],\n" +
		"\t\t\"inputs\": [true or false],\n" +
		"\t\t\"outputs\": [true or false],\n" +
		"\t\t\"constraints\": [true or false]\n" +
		"\t},\n" +
		"\t\"success\": [true or false]\n" +
		"}\n" +
		"```\n" + guidelineFooter

	guidelineFooter = "Make sure it is a valid JSON object.\nReturn only the JSON object, no other text!"
)

// Guidelines returns the format sections every agent needs: normal
// responses, delegation, delegation back and tool use.
func Guidelines() string {
	return strings.Join([]string{
		NormalResponseGuideline,
		DelegationGuideline,
		DelegationBackGuideline,
		ToolsGuideline,
	}, "\n\n")
}
