package validate

import (
	"strings"

	"github.com/sells-group/tender-intel/internal/model"
)

var aggregatorHosts = []string{
	"tendersinfo", "globaltenders", "tendersontime", "tenderimpulse", "biddetail", "dgmarket",
}

var publicBodyWords = []string{
	"authority", "council", "board", "corporation", "university", "hospital", "commission",
	"trust", "polytechnic", "institute",
}

var governmentWords = []string{
	"government", "department", "bureau", "ministry", "office of", "agency",
}

// InferJurisdiction maps a host to HK, SG or Global by its country suffix.
func InferJurisdiction(host string) model.Jurisdiction {
	host = strings.ToLower(host)
	switch {
	case strings.HasSuffix(host, ".hk"):
		return model.JurisdictionHK
	case strings.HasSuffix(host, ".sg"):
		return model.JurisdictionSG
	}
	return model.JurisdictionGlobal
}

// InferOwner classifies a publisher from its host and organisation name.
func InferOwner(host, organisation string) model.OwnerType {
	host = strings.ToLower(host)
	org := strings.ToLower(organisation)

	for _, a := range aggregatorHosts {
		if strings.Contains(host, a) {
			return model.OwnerAggregator
		}
	}
	switch {
	case strings.HasSuffix(host, ".gov.hk"), strings.HasSuffix(host, ".gov.sg"), strings.HasSuffix(host, ".gov"):
		return model.OwnerGovernment
	case strings.HasSuffix(host, ".edu.hk"), strings.HasSuffix(host, ".edu.sg"),
		strings.HasSuffix(host, ".org.hk"), strings.HasSuffix(host, ".org.sg"):
		return model.OwnerPublicBody
	}
	for _, w := range publicBodyWords {
		if strings.Contains(org, w) {
			return model.OwnerPublicBody
		}
	}
	for _, w := range governmentWords {
		if strings.Contains(org, w) {
			return model.OwnerGovernment
		}
	}
	return model.OwnerOther
}
