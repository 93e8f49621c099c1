package query

import (
	"fmt"
	"strings"
)

// Variant selects the answer prompt template.
type Variant string

const (
	VariantDefault       Variant = "default"
	VariantHighlight     Variant = "highlight"
	VariantEvidenceBased Variant = "evidence_based"
)

// Variants lists the supported prompt variants.
var Variants = []Variant{VariantDefault, VariantHighlight, VariantEvidenceBased}

// ParseVariant maps user input onto a Variant; anything unknown is the default.
func ParseVariant(s string) Variant {
	v := Variant(strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))))
	switch v {
	case VariantHighlight, VariantEvidenceBased:
		return v
	default:
		return VariantDefault
	}
}

const contextFrame = "Context information is below.\n" +
	"---------------------\n" +
	"%s\n" +
	"---------------------\n"

var instructions = map[Variant]string{
	VariantDefault: "Include all relevant information from the provided context. " +
		"If information comes from multiple sources, please mention all of them. " +
		"If the information is not available in the context, please state that clearly. " +
		"When quoting specific information, please use square brackets to indicate the source, e.g. [1], [2], etc.",
	VariantHighlight: "Include all relevant information from the provided context. " +
		"Highlight key information by enclosing it in **asterisks**. " +
		"When quoting specific information, please use square brackets to indicate the source, e.g. [1], [2], etc.",
	VariantEvidenceBased: "Provide an answer to the question using evidence from the context above. " +
		"Cite sources using square brackets for EVERY piece of information, e.g. [1], [2], etc. " +
		"Even if there's only one source, still include the citation. " +
		"If you're unsure about a source, use [?]. " +
		"Ensure that EVERY statement from the context is properly cited.",
}

// AnswerPrompt fills the template for variant with the context block and question.
func AnswerPrompt(variant Variant, contextBlock, question string) string {
	text, ok := instructions[variant]
	if !ok {
		text = instructions[VariantDefault]
	}
	return fmt.Sprintf(contextFrame, contextBlock) +
		"Given this information, please answer the question: " + question + "\n" +
		text
}

// FollowUpPrompt asks for three follow-up questions tailored to the study type.
func FollowUpPrompt(contextBlock, question, answer string, studyType StudyType) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf(contextFrame, contextBlock))
	b.WriteString("Original question: " + question + "\n")
	b.WriteString("Response: " + answer + "\n")
	b.WriteString("Study type: " + studyType.Name + "\n")
	if len(studyType.KeyVariables) > 0 {
		b.WriteString("Key variables for this study type: " + strings.Join(studyType.KeyVariables, ", ") + "\n")
	}
	b.WriteString("Based on the above information and the study type, generate 3 follow-up questions that help extract key variables or information from the study. ")
	b.WriteString("Focus on the following aspects:\n")
	b.WriteString("1. Any missing key variables that are typically reported in this type of study.\n")
	b.WriteString("2. Clarification on methodology or results that might affect the interpretation of the study.\n")
	b.WriteString("3. Potential implications or applications of the study findings.\n")
	b.WriteString("Ensure each question is specific, relevant to the study type, and ends with a question mark.")
	return b.String()
}
