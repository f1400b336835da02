// CLAUDE:SUMMARY Role classification — ordered regex table over inferred labels, first match wins.
package fieldmap

import "regexp"

// Role tags for the clinical-note taxonomy.
const (
	RoleName       = "name"
	RoleDOB        = "dob"
	RoleGender     = "gender"
	RoleMRN        = "mrn"
	RolePhone      = "phone"
	RoleEmail      = "email"
	RoleAddress    = "address"
	RoleCC         = "chief-complaint"
	RoleHPI        = "history-of-present-illness"
	RolePMH        = "past-medical-history"
	RolePSH        = "surgical-history"
	RoleFamHx      = "family-history"
	RoleSocHx      = "social-history"
	RoleMeds       = "medications"
	RoleAllergies  = "allergies"
	RoleVitals     = "vitals"
	RoleROS        = "review-of-systems"
	RolePE         = "physical-exam"
	RoleAssessment = "assessment"
	RolePlan       = "plan"
	RoleNote       = "note"
	RoleUnknown    = "unknown"
)

// rolePattern pairs a role with the label pattern that selects it.
type rolePattern struct {
	role    string
	pattern *regexp.Regexp
}

// rolePatterns is evaluated in order; the first matching pattern wins, so
// order is the tie-break when a label could match several roles. Keep the
// table data-driven: extending the taxonomy means adding a row, not control
// flow.
var rolePatterns = []rolePattern{
	{RoleName, regexp.MustCompile(`(?i)name|patient|first.*name|last.*name`)},
	{RoleDOB, regexp.MustCompile(`(?i)dob|birth|date.*birth`)},
	{RoleGender, regexp.MustCompile(`(?i)sex|gender`)},
	{RoleMRN, regexp.MustCompile(`(?i)mrn|record.*no|id`)},
	{RolePhone, regexp.MustCompile(`(?i)phone|mobile|cell`)},
	{RoleEmail, regexp.MustCompile(`(?i)email`)},
	{RoleAddress, regexp.MustCompile(`(?i)address|street|city|zip`)},
	{RoleCC, regexp.MustCompile(`(?i)chief.*complaint|reason.*visit`)},
	{RoleHPI, regexp.MustCompile(`(?i)hpi|history.*illness|story`)},
	{RolePMH, regexp.MustCompile(`(?i)medical.*history|past.*history`)},
	{RolePSH, regexp.MustCompile(`(?i)surgical.*history`)},
	{RoleFamHx, regexp.MustCompile(`(?i)family.*history`)},
	{RoleSocHx, regexp.MustCompile(`(?i)social.*history`)},
	{RoleMeds, regexp.MustCompile(`(?i)medication|drug|rx|current.*meds`)},
	{RoleAllergies, regexp.MustCompile(`(?i)allerg`)},
	{RoleVitals, regexp.MustCompile(`(?i)vital|bp|blood.*pressure|pulse|temp|weight|height`)},
	{RoleROS, regexp.MustCompile(`(?i)review.*systems|ros`)},
	{RolePE, regexp.MustCompile(`(?i)physical.*exam|objective`)},
	{RoleAssessment, regexp.MustCompile(`(?i)assessment|diagnosis|impression|problem.*list`)},
	{RolePlan, regexp.MustCompile(`(?i)plan|treatment|recommendation`)},
	{RoleNote, regexp.MustCompile(`(?i)note|comment|narrative|documentation`)},
}

// ClassifyRole maps an inferred label to a role tag. Unmatched labels
// classify as RoleUnknown; deliberately coarse and order-sensitive.
func ClassifyRole(label string) string {
	for _, rp := range rolePatterns {
		if rp.pattern.MatchString(label) {
			return rp.role
		}
	}
	return RoleUnknown
}
