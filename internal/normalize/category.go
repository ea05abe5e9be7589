package normalize

import (
	"strings"
	"unicode"

	"github.com/sells-group/tender-intel/internal/model"
)

// categoryKeywords drive the last-resort title scan. Single words match whole
// tokens (with a trailing "s"); phrases and CJK terms match as substrings.
var categoryKeywords = []struct {
	tag      string
	keywords []string
}{
	{model.CategoryIT, []string{"software", "it", "digital", "system", "platform", "cyber", "app", "apps", "database", "network", "cloud", "data centre", "computer", "website", "資訊科技", "電腦", "系統"}},
	{model.CategoryEvents, []string{"event", "exhibition", "ceremony", "show", "seminar", "conference", "forum", "festival", "performance", "活動", "展覽", "典禮"}},
	{model.CategoryMarketing, []string{"marketing", "publicity", "campaign", "media", "communications", "advertising", "branding", "pr", "printing", "宣傳", "廣告", "推廣"}},
	{model.CategoryConsultancy, []string{"consultancy", "advisory", "consulting", "eoi", "expression of interest", "study", "review", "assessment", "顧問"}},
	{model.CategoryConstruction, []string{"construction", "building", "civil", "structural", "renovation", "fitting", "alteration", "demolition", "drainage", "sewage", "工程", "建造"}},
	{model.CategoryFacilities, []string{"maintenance", "lift", "escalator", "hvac", "electrical", "mechanical", "cleaning", "security", "facilities", "保養", "清潔", "保安"}},
	{model.CategorySocial, []string{"social", "welfare", "elderly", "disability", "youth", "community", "health", "medical", "hospital", "社會福利", "安老"}},
	{model.CategoryResearch, []string{"research", "survey", "study", "investigation", "pilot", "evaluation", "impact assessment", "研究", "調查"}},
	{model.CategorySupplies, []string{"supply", "supplies", "purchase", "procurement", "equipment", "furniture", "vehicle", "material", "goods", "供應", "採購"}},
	{model.CategoryFinancial, []string{"insurance", "audit", "accounting", "financial", "banking", "actuarial", "保險", "審計"}},
	{model.CategoryGrant, []string{"grant", "funding", "subsidy", "bursary", "scholarship", "資助"}},
}

// rawCategoryTable maps publisher category labels to tags. Keys are matched
// as substrings of the lower-cased raw category.
var rawCategoryTable = []struct {
	raw string
	tag string
}{
	{"information technology", model.CategoryIT},
	{"it services", model.CategoryIT},
	{"ict", model.CategoryIT},
	{"computer", model.CategoryIT},
	{"event management", model.CategoryEvents},
	{"events", model.CategoryEvents},
	{"exhibition", model.CategoryEvents},
	{"advertising", model.CategoryMarketing},
	{"publicity", model.CategoryMarketing},
	{"public relations", model.CategoryMarketing},
	{"printing", model.CategoryMarketing},
	{"consultancy", model.CategoryConsultancy},
	{"professional services", model.CategoryConsultancy},
	{"building works", model.CategoryConstruction},
	{"construction", model.CategoryConstruction},
	{"civil engineering", model.CategoryConstruction},
	{"cleaning", model.CategoryFacilities},
	{"security services", model.CategoryFacilities},
	{"maintenance", model.CategoryFacilities},
	{"property management", model.CategoryFacilities},
	{"social services", model.CategorySocial},
	{"healthcare", model.CategorySocial},
	{"research", model.CategoryResearch},
	{"furniture", model.CategorySupplies},
	{"equipment", model.CategorySupplies},
	{"stores", model.CategorySupplies},
	{"general supplies", model.CategorySupplies},
	{"insurance", model.CategoryFinancial},
	{"audit", model.CategoryFinancial},
	{"financial", model.CategoryFinancial},
	{"grant", model.CategoryGrant},
	{"資訊科技", model.CategoryIT},
	{"活動", model.CategoryEvents},
	{"宣傳", model.CategoryMarketing},
	{"顧問", model.CategoryConsultancy},
	{"工程", model.CategoryConstruction},
}

// Categorize applies the tag cascade: valid source defaults, then the raw
// category table, then a keyword scan. It returns "other" alone when nothing
// matched, which callers may hand to the classifier.
func Categorize(defaults []string, rawCategory, title, description string) []string {
	var tags []string
	for _, d := range defaults {
		if model.ValidCategory(d) && d != model.CategoryOther {
			tags = appendUnique(tags, d)
		}
	}
	if len(tags) > 0 {
		return tags
	}

	if rc := strings.ToLower(strings.TrimSpace(rawCategory)); rc != "" {
		for _, row := range rawCategoryTable {
			if strings.Contains(rc, row.raw) {
				tags = appendUnique(tags, row.tag)
			}
		}
		if len(tags) > 0 {
			return tags
		}
	}

	tags = scanKeywords(title)
	if len(tags) == 0 && description != "" {
		tags = scanKeywords(description)
	}
	if len(tags) == 0 {
		return []string{model.CategoryOther}
	}
	return tags
}

// Unclassified reports whether the cascade fell through to "other".
func Unclassified(tags []string) bool {
	return len(tags) == 1 && tags[0] == model.CategoryOther
}

func scanKeywords(text string) []string {
	lower := strings.ToLower(text)
	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[tok] = true
	}

	var tags []string
	for _, group := range categoryKeywords {
		for _, kw := range group.keywords {
			if matchKeyword(lower, tokens, kw) {
				tags = appendUnique(tags, group.tag)
				break
			}
		}
	}
	return tags
}

func matchKeyword(lower string, tokens map[string]bool, kw string) bool {
	if strings.ContainsRune(kw, ' ') || !isASCII(kw) {
		return strings.Contains(lower, kw)
	}
	return tokens[kw] || tokens[kw+"s"] || tokens[kw+"es"]
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// InferNoticeType reads the procurement method from notice text.
func InferNoticeType(texts ...string) model.NoticeType {
	joined := strings.ToLower(strings.Join(texts, " "))
	switch {
	case strings.Contains(joined, "expression of interest") || containsToken(joined, "eoi") || strings.Contains(joined, "意向書"):
		return model.NoticeEOI
	case strings.Contains(joined, "quotation") || containsToken(joined, "rfq") || strings.Contains(joined, "報價"):
		return model.NoticeQuotation
	case strings.Contains(joined, "tender") || containsToken(joined, "itt") || strings.Contains(joined, "招標") || strings.Contains(joined, "投標"):
		return model.NoticeOpenTender
	}
	return model.NoticeUnknown
}

func containsToken(s, tok string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if f == tok {
			return true
		}
	}
	return false
}
