package models

import (
	id "onboard/pkg/domain"
)

// AuthAccountExtraFields lists the dynamic field names the auth account schema
// stores. Other dynamic values stay on the primary account only.
var AuthAccountExtraFields = map[string]struct{}{
	"title":       {},
	"function":    {},
	"website":     {},
	"street":      {},
	"street2":     {},
	"city":        {},
	"zip":         {},
	"state":       {},
	"birthdate":   {},
	"gender":      {},
	"language":    {},
	"comment":     {},
	"newsletter":  {},
	"referral":    {},
	"employees":   {},
	"industry":    {},
	"company_reg": {},
}

// AuthFields is the part of an AuthAccount derived from a PrimaryAccount.
type AuthFields struct {
	Login       string
	Email       string
	DisplayName string
	Phone       string
	Mobile      string
	CountryID   string
	IsCompany   bool
	VAT         string
	Extra       map[string]any
}

// ToAuthFields projects p onto auth account fields. The contact field follows the
// phone type: mobile and unknown fill Mobile, fixed_line fills Phone,
// fixed_line_or_mobile fills both.
func ToAuthFields(p *PrimaryAccount) AuthFields {
	f := AuthFields{
		Login:       p.Email,
		Email:       p.Email,
		DisplayName: p.DisplayName(),
		CountryID:   p.PhoneCountryID,
		IsCompany:   p.Kind == KindCompany,
		Extra:       map[string]any{},
	}
	if f.IsCompany {
		f.VAT = p.TaxID
	}

	if p.Phone != "" {
		switch p.PhoneType {
		case id.PhoneTypeFixedLine:
			f.Phone = p.Phone
		case id.PhoneTypeFixedLineOrMobile:
			f.Phone = p.Phone
			f.Mobile = p.Phone
		default:
			f.Mobile = p.Phone
		}
	}

	for name, v := range p.DynamicFields {
		if _, ok := AuthAccountExtraFields[name]; ok {
			f.Extra[name] = v
		}
	}
	return f
}
