// Package extract normalizes the loosely-structured responses of the card
// scanning service into flat contact and company-insight records. The service
// does not fix its response shape: the same logical field may appear at the
// top level, under structured_data, under company_data, or under
// additional_info, and may be duplicated between them.
package extract

import (
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"

	"github.com/syndy/cardscan/internal/model"
)

// Probe paths per logical field, in priority order: root first, then
// structured_data, then company_data / additional_info. The first non-empty
// value wins.
var contactPaths = map[string][]string{
	"name": {
		"name", "full_name",
		"structured_data.name", "structured_data.full_name",
	},
	"title": {
		"title", "job_title", "designation",
		"structured_data.title", "structured_data.job_title", "structured_data.designation",
	},
	"email": {
		"email", "email_address",
		"structured_data.email", "structured_data.email_address",
	},
	"phone": {
		"phone", "phone_number", "mobile",
		"structured_data.phone", "structured_data.phone_number", "structured_data.mobile",
	},
	"company": {
		"company", "company_name", "organization",
		"structured_data.company", "structured_data.company_name", "structured_data.organization",
	},
}

var insightPaths = map[string][]string{
	"description": {
		"description", "company_description",
		"structured_data.company_description",
		"company_data.description", "company_data.company_description",
		"additional_info.description",
	},
	"products": {
		"products", "products_services",
		"structured_data.products",
		"company_data.products", "company_data.products_services",
		"additional_info.products",
	},
	"industry": {
		"industry",
		"structured_data.industry",
		"company_data.industry",
		"additional_info.industry",
	},
	"employee_count": {
		"employee_count", "employees",
		"structured_data.employee_count",
		"company_data.employee_count", "company_data.employees",
		"additional_info.employee_count",
	},
	"revenue": {
		"revenue", "annual_revenue",
		"structured_data.revenue",
		"company_data.revenue", "company_data.annual_revenue",
		"additional_info.revenue",
	},
	"market_share": {
		"market_share",
		"structured_data.market_share",
		"company_data.market_share",
		"additional_info.market_share",
	},
	"investors": {
		"investors", "funding",
		"structured_data.investors",
		"company_data.investors", "company_data.funding",
		"additional_info.investors",
	},
	"summary": {
		"summary", "ai_summary",
		"structured_data.summary",
		"company_data.summary",
		"additional_info.summary", "additional_info.ai_summary",
	},
	"other_info": {
		"other_info", "notes",
		"structured_data.other_info",
		"company_data.other_info",
		"additional_info.other_info", "additional_info.notes",
	},
}

// firstValue returns the first non-empty scalar at any of the probe paths.
// Objects and arrays are skipped: a container at a candidate path is never a
// displayable value.
func firstValue(raw []byte, paths []string) string {
	for _, p := range paths {
		v := gjson.GetBytes(raw, p)
		if !v.Exists() || v.Type == gjson.Null || v.IsObject() || v.IsArray() {
			continue
		}
		if s := clean(v.String()); s != "" {
			return s
		}
	}
	return ""
}

// clean trims and NFC-normalizes an extracted string. OCR output routinely
// carries stray whitespace and decomposed accents.
func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Contact extracts a normalized contact record from a raw response body.
// A body with no extractable fields yields an empty record, not an error.
func Contact(raw []byte) model.Contact {
	return model.Contact{
		Name:    firstValue(raw, contactPaths["name"]),
		Title:   firstValue(raw, contactPaths["title"]),
		Email:   firstValue(raw, contactPaths["email"]),
		Phone:   firstValue(raw, contactPaths["phone"]),
		Company: firstValue(raw, contactPaths["company"]),
	}
}

// Insight extracts a normalized company-insight record from a raw response body.
func Insight(raw []byte) model.CompanyInsight {
	return model.CompanyInsight{
		Description:   firstValue(raw, insightPaths["description"]),
		Products:      firstValue(raw, insightPaths["products"]),
		Industry:      firstValue(raw, insightPaths["industry"]),
		EmployeeCount: firstValue(raw, insightPaths["employee_count"]),
		Revenue:       firstValue(raw, insightPaths["revenue"]),
		MarketShare:   firstValue(raw, insightPaths["market_share"]),
		Investors:     firstValue(raw, insightPaths["investors"]),
		Summary:       firstValue(raw, insightPaths["summary"]),
		OtherInfo:     firstValue(raw, insightPaths["other_info"]),
	}
}

// MergeContact applies src onto dst field-wise, skipping absent incoming
// values so a populated field is never reverted. Reports whether dst changed.
func MergeContact(dst *model.Contact, src model.Contact) bool {
	changed := false
	apply(&dst.Name, src.Name, &changed)
	apply(&dst.Title, src.Title, &changed)
	apply(&dst.Email, src.Email, &changed)
	apply(&dst.Phone, src.Phone, &changed)
	apply(&dst.Company, src.Company, &changed)
	return changed
}

// MergeInsight applies src onto dst field-wise with the same monotonic-fill
// rule as MergeContact.
func MergeInsight(dst *model.CompanyInsight, src model.CompanyInsight) bool {
	changed := false
	apply(&dst.Description, src.Description, &changed)
	apply(&dst.Products, src.Products, &changed)
	apply(&dst.Industry, src.Industry, &changed)
	apply(&dst.EmployeeCount, src.EmployeeCount, &changed)
	apply(&dst.Revenue, src.Revenue, &changed)
	apply(&dst.MarketShare, src.MarketShare, &changed)
	apply(&dst.Investors, src.Investors, &changed)
	apply(&dst.Summary, src.Summary, &changed)
	apply(&dst.OtherInfo, src.OtherInfo, &changed)
	return changed
}

func apply(dst *string, src string, changed *bool) {
	if src == "" || src == *dst {
		return
	}
	*dst = src
	*changed = true
}
