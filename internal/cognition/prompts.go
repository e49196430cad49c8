package cognition

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Prompt templates for the external reasoning collaborator. The engine
// itself never calls a model; callers render these when requesting a
// self-assessment or a reinforcement reflection.

// SelfAssessmentPrompt asks the collaborator to score an upcoming task
// across the five assessment dimensions.
const SelfAssessmentPrompt = `You are the cognitive engine for an automation agent. Your role is to evaluate an upcoming automation task before execution. You must return ONLY structured JSON with numeric scores.

Evaluate the task across the five dimensions below. Each dimension must be a number from 0 to 1.

Definitions:
- skill_sufficiency: How capable the assigned agent is of performing this task. 0=unskilled, 1=expert.
- task_complexity: How difficult or multi-step the task is. 0=trivial, 1=complex.
- recent_success_rate: Probability of success based on recent similar attempts. 0=low, 1=high.
- tool_benefit: Degree to which browser automation tools improve results. 0=minimal, 1=critical.
- confidence: Your internal certainty about this assessment. 0=low, 1=high.

Input:
- Task: "{{TASK_DESCRIPTION}}"
- Agent category: {{AGENT_CATEGORY}}
- Agent personality: {{AGENT_PERSONALITY}}

Output:
Return ONLY JSON. No commentary.
{
  "skill_sufficiency": <number>,
  "task_complexity": <number>,
  "recent_success_rate": <number>,
  "tool_benefit": <number>,
  "confidence": <number>
}
`

// ReinforcementPrompt asks the collaborator to reflect on a completed
// task and propose small weight adjustments.
const ReinforcementPrompt = `You are the cognitive engine for an automation agent. Your role is to update internal reinforcement memory based on the outcome of a completed automation task.

Input:
- Task: {{TASK_DESCRIPTION}}
- Assessment: {{ASSESSMENT_JSON}}
- Decision: {{DECISION_JSON}}
- Outcome: {{OUTCOME_JSON}}

Output:
Return ONLY JSON.
{
  "summary": "<one-sentence reflection>",
  "adjust_weights": {
    "skill_sufficiency": <number -1 to 1>,
    "task_complexity": <number -1 to 1>,
    "recent_success_rate": <number -1 to 1>,
    "tool_benefit": <number -1 to 1>,
    "confidence": <number -1 to 1>
  }
}
`

// FillPrompt substitutes {{KEY}} placeholders with values. Non-string
// values are JSON encoded.
func FillPrompt(template string, vars map[string]interface{}) string {
	out := template
	for key, value := range vars {
		placeholder := fmt.Sprintf("{{%s}}", strings.ToUpper(key))
		var rendered string
		switch v := value.(type) {
		case string:
			rendered = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				rendered = fmt.Sprintf("%v", v)
			} else {
				rendered = string(b)
			}
		}
		out = strings.ReplaceAll(out, placeholder, rendered)
	}
	return out
}
