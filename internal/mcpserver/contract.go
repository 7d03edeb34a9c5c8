package mcpserver

// DiaryFormatContract describes the canonical diary response format that
// LLM consumers must follow when submitting diary responses.
const DiaryFormatContract = `# Daybook Diary Response Contract

Diary submissions are a JSON object mapping response keys to answers.

## Structure

` + "```" + `json
{
  "mood": "Hard",
  "activities": ["Reading", "Outdoor play"],
  "mood_detail": "Skipped the afternoon nap."
}
` + "```" + `

## Rules

1. **Keys come from the day's questionnaire.** Call ` + "`" + `read_day` + "`" + ` first: every
   question ` + "`" + `id` + "`" + ` and every follow-up ` + "`" + `responseKey` + "`" + ` is a valid key. Unknown
   keys are rejected.
2. **Answer shape follows the question type:**
   - ` + "`" + `radio` + "`" + ` — a single string, one of the question's ` + "`" + `options` + "`" + `.
   - ` + "`" + `checkbox` + "`" + ` — an array of strings drawn from the question's ` + "`" + `options` + "`" + `.
   - ` + "`" + `textarea` + "`" + ` — free text.
3. **Follow-ups are conditional.** A follow-up answer is kept only while its
   ` + "`" + `showWhen` + "`" + ` condition holds against the parent question's answer; hidden
   follow-up answers are dropped on save.
4. **Submissions are whole.** The responses object replaces the stored one,
   so include every answer the caregiver gave, not just the changed keys.
5. **Edit windows close.** Past days may refuse writes; check ` + "`" + `diaryEditable` + "`" + `
   in ` + "`" + `list_days` + "`" + ` before submitting.

## Example

For a day whose questionnaire has a radio question ` + "`" + `mood` + "`" + ` with options
["Good", "Hard"] and a follow-up keyed ` + "`" + `mood_detail` + "`" + ` shown when the answer
equals "Hard":

` + "```" + `json
{
  "mood": "Hard",
  "mood_detail": "Teething kept everyone up."
}
` + "```" + `
`
