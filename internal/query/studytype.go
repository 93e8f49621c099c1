package query

import "strings"

// StudyType names a family of studies and the variables they usually report.
type StudyType struct {
	Name         string   `json:"name"`
	KeyVariables []string `json:"key_variables"`
}

var (
	VaccineCoverage = StudyType{
		Name: "Vaccine Coverage",
		KeyVariables: []string{
			"STUDYID", "AUTHOR", "YEAR", "TITLE", "VACCINE_COVERAGE_RATES",
			"PROPORTION_ADMINISTERED_WITHIN_RECOMMENDED_AGE", "IMMUNISATION_UPTAKE",
			"VACCINE_DROP_OUT_RATES", "INTENTIONS_TO_VACCINATE", "VACCINE_CONFIDENCE", "STUDY_COMMENTS",
		},
	}
	EbolaVirus = StudyType{
		Name: "Ebola Virus",
		KeyVariables: []string{
			"SAMPLE_SIZE", "PLASMA_TYPE", "DOSAGE", "FREQUENCY", "SIDE_EFFECTS",
			"VIRAL_LOAD_CHANGE", "SURVIVAL_RATE",
		},
	}
	GeneXpert = StudyType{
		Name: "Gene Xpert",
		KeyVariables: []string{
			"OBJECTIVE", "OUTCOME_MEASURES", "SENSITIVITY", "SPECIFICITY",
			"COST_COMPARISON", "TURNAROUND_TIME",
		},
	}
	General = StudyType{
		Name: "General",
		KeyVariables: []string{
			"STUDYID", "AUTHOR", "YEAR", "TITLE", "APPENDIX", "PUBLICATION_TYPE", "STUDY_DESIGN",
			"STUDY_AREA_REGION", "STUDY_POPULATION", "IMMUNISABLE_DISEASE_UNDER_STUDY",
			"ROUTE_OF_VACCINE_ADMINISTRATION", "DURATION_OF_STUDY",
			"DURATION_IN_RELATION_TO_COVID19", "STUDY_COMMENTS",
		},
	}
)

// InferStudyType guesses the study type from a study name.
func InferStudyType(study string) StudyType {
	name := strings.ToLower(study)
	compact := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(name)
	switch {
	case strings.Contains(name, "vaccine"), strings.Contains(name, "immunis"), strings.Contains(name, "immuniz"):
		return VaccineCoverage
	case strings.Contains(name, "ebola"):
		return EbolaVirus
	case strings.Contains(compact, "genexpert"), strings.Contains(compact, "xpert"):
		return GeneXpert
	default:
		return General
	}
}
