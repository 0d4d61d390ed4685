package pipeline

import (
	"regexp"
	"strings"

	"dbregistry/internal"
	"dbregistry/internal/util"
)

// Category labels offered by the extraction form, folded.
const (
	labelEHR              = "hospital data (electronic health record)"
	labelInsuranceClaims  = "insurance/claims data"
	labelDiseaseCohort    = "disease specific network"
	labelNationalRegistry = "national registries"
)

var reOtherType = regexp.MustCompile(`(?i)other\s*:\s*([^;]*)`)

// ExpandDataType derives the category flags and the "Other:" text from the
// data type answer. A missing answer leaves every flag missing.
func ExpandDataType(text *string) internal.DataTypes {
	if text == nil {
		return internal.DataTypes{}
	}
	key := util.Fold(*text)
	types := internal.DataTypes{
		EHR:              flag(strings.Contains(key, labelEHR)),
		InsuranceClaims:  flag(strings.Contains(key, labelInsuranceClaims)),
		DiseaseCohort:    flag(strings.Contains(key, labelDiseaseCohort)),
		NationalRegistry: flag(strings.Contains(key, labelNationalRegistry)),
	}
	if m := reOtherType.FindStringSubmatch(*text); m != nil {
		if other := util.StripQuotes(m[1]); other != "" {
			types.Other = &other
		}
	}
	return types
}

func flag(present bool) *int {
	if present {
		return util.IntPtr(1)
	}
	return util.IntPtr(0)
}
