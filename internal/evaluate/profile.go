package evaluate

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tender-intel/internal/model"
	"github.com/sells-group/tender-intel/internal/store"
)

// DefaultWeights returns the initial weight set.
func DefaultWeights() model.Weights {
	return model.Weights{
		Capability: model.CapabilityWeights{
			CategoryMatch:     0.35,
			AgencyFamiliarity: 0.15,
			DeliveryScale:     0.20,
			KeywordOverlap:    0.20,
			GeographicFit:     0.10,
		},
		Business: model.BusinessWeights{
			Budget:              0.30,
			BudgetProxy:         0.15,
			StrategicBeachhead:  0.20,
			CategoryGrowth:      0.15,
			TimeToDeadline:      0.10,
			RecurrencePotential: 0.10,
		},
		Overall: model.OverallWeights{Capability: 0.55, Business: 0.45},
	}
}

// DefaultProfile is the seed profile for a Hong Kong digital marketing and
// events agency with Singapore as a secondary market.
func DefaultProfile() *model.Profile {
	return &model.Profile{
		Version: "1.0.0",
		Competencies: []string{
			model.CategoryMarketing,
			model.CategoryEvents,
			model.CategoryIT,
		},
		AdjacentCategories: []string{
			model.CategoryConsultancy,
			model.CategoryResearch,
		},
		TrackRecordKeywords: []string{
			"digital marketing", "social media", "campaign", "event", "exhibition",
			"roadshow", "website", "video production", "branding", "publicity",
			"content", "public engagement",
		},
		KnownAgencies: []string{
			"Tourism Commission",
			"Information Services Department",
			"Hong Kong Tourism Board",
		},
		MaxDeliveryFTE:        8,
		PrimaryJurisdiction:   model.JurisdictionHK,
		SecondaryJurisdiction: model.JurisdictionSG,
		Weights:               DefaultWeights(),
		ChangeNote:            "initial profile",
	}
}

// LoadProfile returns the active profile, seeding the default when the store
// has none yet.
func LoadProfile(ctx context.Context, st store.Store) (*model.Profile, error) {
	p, err := st.ActiveProfile(ctx)
	if err == nil {
		return p, nil
	}
	if !eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrap(err, "evaluate: load profile")
	}
	p = DefaultProfile()
	if err := st.SaveProfile(ctx, p); err != nil {
		return nil, eris.Wrap(err, "evaluate: seed default profile")
	}
	return p, nil
}
