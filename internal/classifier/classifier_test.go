package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/lexa/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		source   models.DocumentSource
		metadata map[string]string
		docType  models.DocType
		audience models.Audience
	}{
		{
			name:     "ato ruling section",
			source:   models.SourceATO,
			metadata: map[string]string{"section": "Public rulings"},
			docType:  models.DocTypeRuling,
			audience: models.AudienceProfessional,
		},
		{
			name:     "ato determination",
			source:   models.SourceATO,
			metadata: map[string]string{"section": "Taxation determinations"},
			docType:  models.DocTypeRuling,
			audience: models.AudienceProfessional,
		},
		{
			name:     "ato individuals section",
			source:   models.SourceATO,
			metadata: map[string]string{"section": "Individuals"},
			docType:  models.DocTypeGuidance,
			audience: models.AudienceIndividual,
		},
		{
			name:     "ato business section",
			source:   models.SourceATO,
			metadata: map[string]string{"section": "Business activity statements"},
			docType:  models.DocTypeGuidance,
			audience: models.AudienceBusiness,
		},
		{
			name:     "ato forms",
			source:   models.SourceATO,
			metadata: map[string]string{"section": "Forms and instructions"},
			docType:  models.DocTypeForm,
			audience: models.AudienceGeneral,
		},
		{
			name:     "ato unknown section defaults to general guidance",
			source:   models.SourceATO,
			metadata: map[string]string{"section": "Media centre"},
			docType:  models.DocTypeGuidance,
			audience: models.AudienceGeneral,
		},
		{
			name:     "legislation act",
			source:   models.SourceLegislation,
			metadata: map[string]string{"document-kind": "Act"},
			docType:  models.DocTypeLegislation,
			audience: models.AudienceProfessional,
		},
		{
			name:     "legislation explanatory memorandum",
			source:   models.SourceLegislation,
			metadata: map[string]string{"document-kind": "Explanatory Memorandum"},
			docType:  models.DocTypeGuidance,
			audience: models.AudienceProfessional,
		},
		{
			name:     "legislation missing kind defaults to legislation",
			source:   models.SourceLegislation,
			metadata: map[string]string{},
			docType:  models.DocTypeLegislation,
			audience: models.AudienceProfessional,
		},
		{
			name:     "treasury always guidance",
			source:   models.SourceTreasury,
			metadata: map[string]string{"anything": "ignored"},
			docType:  models.DocTypeGuidance,
			audience: models.AudienceProfessional,
		},
		{
			name:     "upload with ruling hint",
			source:   models.SourceUpload,
			metadata: map[string]string{"kind": "private ruling"},
			docType:  models.DocTypeRuling,
			audience: "",
		},
		{
			name:     "upload without hints stays empty",
			source:   models.SourceUpload,
			metadata: map[string]string{},
			docType:  "",
			audience: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.source, tt.metadata)
			assert.Equal(t, tt.docType, c.DocType)
			assert.Equal(t, tt.audience, c.Audience)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	metadata := map[string]string{"section": "Public rulings"}
	first := Classify(models.SourceATO, metadata)
	second := Classify(models.SourceATO, metadata)
	assert.Equal(t, first, second)
}

func TestInferTaxArea(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		prefix string
		area   string
	}{
		{"cgt in title", "CGT main residence exemption", "", "capital-gains"},
		{"gst in prefix", "Ruling overview", "This ruling concerns GST input tax credits", "gst"},
		{"fbt", "Fringe benefits tax: car parking", "", "fringe-benefits"},
		{"super", "Superannuation guarantee obligations", "", "superannuation"},
		{"deductions", "Claiming work-related expenses", "", "deductions"},
		{"depreciation", "Division 40 capital allowances", "", "depreciation"},
		{"payg", "", "PAYG withholding obligations for employers", "payg-withholding"},
		{"income tax fallback", "Assessable income of residents", "", "income-tax"},
		{"first match wins over later rules", "CGT and GST interaction", "", "capital-gains"},
		{"no match", "Annual report 2023", "Corporate plan highlights", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.area, InferTaxArea(tt.title, tt.prefix))
		})
	}
}
