package templating

// Built-in meta-templates used by the best-of-N judge call (spec §4.4).
// These live under the reserved "t0:" namespace and are never user
// configurable.
const (
	BestOfNEvaluatorSystemTemplate = `You are an assistant tasked with re-ranking candidate answers to a task.
The task is as follows:

{{if .inner_system}}{{.inner_system}}{{end}}

There are {{.max_index}} + 1 candidate answers, indexed 0 to {{.max_index}}.
Evaluate each candidate answer and select the index of the best one.
Respond with a JSON object: {"thinking": "<your reasoning>", "answer_choice": <index>}.`

	BestOfNEvaluatorCandidatesTemplate = `Here are the candidate answers:
{{range $i, $c := .candidates}}
Candidate {{$i}}:
{{$c}}
{{end}}`
)

// BestOfNJudgeSchema is the fixed schema the judge's response is forced
// against.
const BestOfNJudgeSchema = `{
  "type": "object",
  "properties": {
    "thinking": {"type": "string"},
    "answer_choice": {"type": "integer"}
  },
  "required": ["thinking", "answer_choice"],
  "additionalProperties": false
}`

// ChainOfThoughtSchema wraps a function's output schema with the mandatory
// {thinking, response} envelope (spec §4.6).
func ChainOfThoughtSchema(outputSchema string) string {
	return `{
  "type": "object",
  "properties": {
    "thinking": {"type": "string"},
    "response": ` + outputSchema + `
  },
  "required": ["thinking", "response"],
  "additionalProperties": false
}`
}
