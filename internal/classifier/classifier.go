// -----------------------------------------------------------------------
// Classifier Service - Rule-based document classification
// Infers document type, audience and tax area from source metadata
// -----------------------------------------------------------------------

package classifier

import (
	"regexp"
	"strings"

	"github.com/ternarybob/lexa/internal/models"
)

// Classification holds inferred document attributes. Empty fields mean
// no rule matched; callers must not overwrite values that were already
// set on the document.
type Classification struct {
	DocType  models.DocType
	Audience models.Audience
}

// taxAreaRule pairs a compiled pattern with the area it selects. The
// slice is ordered; the first matching rule wins.
type taxAreaRule struct {
	pattern *regexp.Regexp
	area    string
}

var taxAreaRules = []taxAreaRule{
	{regexp.MustCompile(`(?i)\b(capital gains?|cgt|main residence exemption)\b`), "capital-gains"},
	{regexp.MustCompile(`(?i)\b(gst|goods and services tax|input tax credit)\b`), "gst"},
	{regexp.MustCompile(`(?i)\b(fringe benefits?|fbt)\b`), "fringe-benefits"},
	{regexp.MustCompile(`(?i)\b(superannuation|super guarantee|smsf|concessional contribution)\b`), "superannuation"},
	{regexp.MustCompile(`(?i)\b(deduction|deductible|work.related expense|home office)\b`), "deductions"},
	{regexp.MustCompile(`(?i)\b(depreciation|capital allowance|instant asset write.off|division 40)\b`), "depreciation"},
	{regexp.MustCompile(`(?i)\b(payg|pay as you go|withholding)\b`), "payg-withholding"},
	{regexp.MustCompile(`(?i)\b(trust distribution|family trust|discretionary trust)\b`), "trusts"},
	{regexp.MustCompile(`(?i)\b(small business|sbe concession|base rate entity)\b`), "small-business"},
	{regexp.MustCompile(`(?i)\b(income tax|assessable income|taxable income)\b`), "income-tax"},
	{regexp.MustCompile(`(?i)\b(international|transfer pricing|non.resident|double tax)\b`), "international"},
}

// Classify infers type and audience from the originating source and its
// metadata bag. Pure and deterministic: the same inputs always produce
// the same classification.
func Classify(source models.DocumentSource, metadata map[string]string) Classification {
	var c Classification

	switch source {
	case models.SourceATO:
		c = classifyATO(metadata)
	case models.SourceLegislation:
		c = classifyLegislation(metadata)
	case models.SourceTreasury:
		c.DocType = models.DocTypeGuidance
		c.Audience = models.AudienceProfessional
	case models.SourceUpload:
		// Uploads carry no trustworthy source signal; fall through to
		// metadata hints only.
		c = classifyFromHints(metadata)
	}

	return c
}

// classifyATO keys on the ATO site section recorded by the scraper.
func classifyATO(metadata map[string]string) Classification {
	section := strings.ToLower(metadata["section"])

	var c Classification
	switch {
	case strings.Contains(section, "ruling"), strings.Contains(section, "determination"):
		c.DocType = models.DocTypeRuling
		c.Audience = models.AudienceProfessional
	case strings.Contains(section, "individual"):
		c.DocType = models.DocTypeGuidance
		c.Audience = models.AudienceIndividual
	case strings.Contains(section, "business"):
		c.DocType = models.DocTypeGuidance
		c.Audience = models.AudienceBusiness
	case strings.Contains(section, "form"), strings.Contains(section, "instruction"):
		c.DocType = models.DocTypeForm
		c.Audience = models.AudienceGeneral
	default:
		c.DocType = models.DocTypeGuidance
		c.Audience = models.AudienceGeneral
	}
	return c
}

// classifyLegislation keys on the register's document-kind field.
func classifyLegislation(metadata map[string]string) Classification {
	kind := strings.ToLower(metadata["document-kind"])

	c := Classification{
		DocType:  models.DocTypeLegislation,
		Audience: models.AudienceProfessional,
	}
	switch {
	case strings.Contains(kind, "explanatory"):
		c.DocType = models.DocTypeGuidance
	case strings.Contains(kind, "regulation"), strings.Contains(kind, "act"), kind == "":
		c.DocType = models.DocTypeLegislation
	default:
		c.DocType = models.DocTypeOther
	}
	return c
}

func classifyFromHints(metadata map[string]string) Classification {
	var c Classification
	hint := strings.ToLower(metadata["kind"])
	switch {
	case strings.Contains(hint, "ruling"):
		c.DocType = models.DocTypeRuling
	case strings.Contains(hint, "legislation"), strings.Contains(hint, "act"):
		c.DocType = models.DocTypeLegislation
	case strings.Contains(hint, "form"):
		c.DocType = models.DocTypeForm
	case hint != "":
		c.DocType = models.DocTypeOther
	}
	return c
}

// InferTaxArea tests title plus a text prefix against the ordered rule
// list. First match wins; empty string when nothing matches.
func InferTaxArea(title, textPrefix string) string {
	haystack := title + "\n" + textPrefix
	for _, rule := range taxAreaRules {
		if rule.pattern.MatchString(haystack) {
			return rule.area
		}
	}
	return ""
}
