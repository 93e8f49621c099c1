package extract

import (
	"sort"
	"strings"
)

var presets = map[string]string{
	"ebola_virus": "STUDYID, AUTHOR, YEAR, TITLE, PUBLICATION_TYPE, STUDY_DESIGN, STUDY_AREA_REGION, STUDY_POPULATION, SAMPLE_SIZE, PLASMA_TYPE, DOSAGE, " +
		"FREQUENCY, SIDE_EFFECTS, VIRAL_LOAD_CHANGE, SURVIVAL_RATE, INCLUSION_CRITERIA, EXCLUSION_CRITERIA, SUBGROUP_ANALYSES, FOLLOW_UP_DURATION, " +
		"LONG_TERM_OUTCOMES, DISEASE_SEVERITY_ASSESSMENT, BIOSAFETY_MEASURES, ETHICAL_CONSIDERATIONS, and STUDY_COMMENTS.",
	"genexpert": "STUDYID, AUTHOR, YEAR, TITLE, PUBLICATION_TYPE, STUDY_DESIGN, STUDY_AREA_REGION, STUDY_POPULATION, DISEASE_CONDITION, OBJECTIVE, OUTCOME_MEASURES, " +
		"SENSITIVITY, SPECIFICITY, COST_COMPARISON, TURNAROUND_TIME, IMPLEMENTATION_CHALLENGES, PERFORMANCE_VARIATIONS, QUALITY_CONTROL, EQUIPMENT_ISSUES, " +
		"PATIENT_OUTCOME_IMPACT, TRAINING_REQUIREMENTS, SCALABILITY_CONSIDERATIONS, and STUDY_COMMENTS.",
	"vaccine_coverage": "STUDYID, AUTHORS, YEAR, TITLE, VACCINE_COVERAGE_RATES, PROPORTION_ADMINISTERED_WITHIN_RECOMMENDED_AGE, IMMUNISATION_UPTAKE, " +
		"VACCINE_DROP_OUT_RATES, INTENTIONS_TO_VACCINATE, VACCINE_CONFIDENCE, STUDY_COMMENTS",
	"study_characteristics": "STUDYID, AUTHOR, YEAR, TITLE, APPENDIX, PUBLICATION_TYPE, STUDY_DESIGN, STUDY_AREA_REGION, STUDY_POPULATION, " +
		"IMMUNISABLE_DISEASE_UNDER_STUDY, ROUTE_OF_VACCINE_ADMINISTRATION, DURATION_OF_STUDY, DURATION_IN_RELATION_TO_COVID19, STUDY_COMMENTS",
}

// PresetNames lists the built-in variable presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns the variables of a named preset.
func Preset(name string) ([]string, bool) {
	list, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	return ParseVariables(list), true
}

// ParseVariables splits a comma-separated list such as "A, B, and C." or
// "A, B and C" into normalised variable names.
func ParseVariables(list string) []string {
	parts := strings.Split(list, ",")
	last := parts[len(parts)-1]
	if i := strings.LastIndex(strings.ToLower(last), " and "); i >= 0 {
		parts = append(parts[:len(parts)-1], last[:i], last[i+len(" and "):])
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimSuffix(p, ".")
		if len(p) > 4 && strings.EqualFold(p[:4], "and ") {
			p = p[4:]
		}
		parts[i] = p
	}
	return NormalizeVariables(parts)
}
