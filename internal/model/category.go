package model

// Canonical category tags. Every tender carries one or more of these.
const (
	CategoryIT           = "IT_digital"
	CategoryEvents       = "events_experiential"
	CategoryMarketing    = "marketing_comms"
	CategoryConsultancy  = "consultancy_advisory"
	CategoryConstruction = "construction_works"
	CategoryFacilities   = "facilities_management"
	CategorySocial       = "social_services"
	CategoryResearch     = "research_study"
	CategorySupplies     = "supplies_procurement"
	CategoryFinancial    = "financial_services"
	CategoryGrant        = "grant_funding"
	CategoryOther        = "other"
)

// Categories is the closed tag vocabulary in display order.
var Categories = []string{
	CategoryIT, CategoryEvents, CategoryMarketing, CategoryConsultancy,
	CategoryConstruction, CategoryFacilities, CategorySocial, CategoryResearch,
	CategorySupplies, CategoryFinancial, CategoryGrant, CategoryOther,
}

var categorySet = func() map[string]bool {
	m := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		m[c] = true
	}
	return m
}()

// ValidCategory reports whether tag belongs to the vocabulary.
func ValidCategory(tag string) bool {
	return categorySet[tag]
}
