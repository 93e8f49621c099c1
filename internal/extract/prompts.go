package extract

import (
	"fmt"
	"strings"
)

// summaryPrompt is the first pass: a variable-organised free-text summary of
// the whole document.
func summaryPrompt(text string, variables []string) string {
	return fmt.Sprintf(`Write a detailed summary of the following extracting the key information:
Text: `+"`%s`"+`
DETAILED SUMMARY:
Your job is to produce a final summary text that covers the key points based on the provided variables.
VARIABLES: %s.
Break the summary according to the variables by BULLET POINTS if possible AND end the summary with a CONCLUSION PHRASE.
Skip the References Section when generating the Summary.
Return the summary organised under each of the variables given.`, text, strings.Join(variables, ", "))
}

// jsonPrompt is the second pass: re-express the summary as a strict JSON object.
func jsonPrompt(summary string, variables []string) string {
	return fmt.Sprintf(`Below is a summary of a research document organised by variables.
------------
%s
------------
Return ONLY a json object whose keys are exactly these variables: %s.
Each value is the information the summary reports for that variable, as a string.
Omit any variable that is truly absent from the source text.
Do not wrap the JSON in markdown fences and do not add any commentary.`, summary, strings.Join(variables, ", "))
}
