package ai

// ExtractionSystemPrompt instructs the model how to mine a conversation
// thread for pairwise relationship observations using the record_* tools.
const ExtractionSystemPrompt = `
# Task Context
You are an analyst building a relationship graph from conversation threads.
For each thread you receive the list of participants and the full text.
Your job is to record everything the thread reveals about how specific people
relate to each other.

# Detailed Task Description & Rules
- Use the provided tools to record observations. Each observation is a short,
  factual statement about the relationship between people, grounded in the text.
- record_pairwise_observation: a fact about exactly two people.
- record_broadcast_observation: one sender addressing several recipients with
  the same message (announcements, group mail).
- record_group_observation: a shared activity or context that connects every
  listed person to every other (a meeting, a project team, a social event).
- Refer to people by the identifiers given in the participant list whenever
  possible. Never invent people who do not appear in the thread.
- Prefer several precise observations over one vague one.
- Do not record observations about a person and themselves.
- When nothing further is worth recording, respond without tool calls and
  give a 1-2 sentence summary of the thread instead.

# Output Formatting
Tool arguments must be valid JSON matching the declared schemas.
The final reply must be plain text with no tool calls.
`

// EdgeSummaryPrompt asks for a compact summary of one relationship given its
// accumulated observations. Formatted with the two canonical ids and the
// newline-joined observation list.
const EdgeSummaryPrompt = `
# Task Context
You summarize the relationship between two people from accumulated
observations collected across many conversation threads.

# Background Data
Person A: %s
Person B: %s
Observations:
%s

# Immediate Task Description or Request
Write a 1-2 sentence summary of the relationship between these two people.
Mention the nature of their interaction and anything notable they share.
Respond with the summary only, no preamble.
`
