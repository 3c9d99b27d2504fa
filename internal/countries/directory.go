// Package countries is the country reference used for phone validation and the
// signup form's country picker.
package countries

import (
	"sort"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Country is a selectable phone country. ID is the ISO 3166-1 alpha-2 code.
type Country struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	PhoneCode int    `json:"phone_code"`
}

// Directory is an immutable lookup built once at startup.
type Directory struct {
	byID   map[string]Country
	sorted []Country
}

// New builds the directory from the phone-number library's supported regions.
func New() *Directory {
	regions := phonenumbers.GetSupportedRegions()
	namer := display.English.Regions()

	d := &Directory{
		byID: make(map[string]Country, len(regions)),
	}
	for code := range regions {
		name := code
		if region, err := language.ParseRegion(code); err == nil {
			if n := namer.Name(region); n != "" {
				name = n
			}
		}
		c := Country{
			ID:        code,
			Code:      code,
			Name:      name,
			PhoneCode: phonenumbers.GetCountryCodeForRegion(code),
		}
		d.byID[code] = c
		d.sorted = append(d.sorted, c)
	}
	sort.Slice(d.sorted, func(i, j int) bool { return d.sorted[i].Name < d.sorted[j].Name })
	return d
}

// ByID returns the country with the given ISO code, case-insensitively.
func (d *Directory) ByID(id string) (Country, bool) {
	c, ok := d.byID[strings.ToUpper(strings.TrimSpace(id))]
	return c, ok
}

// List returns all countries ordered by name.
func (d *Directory) List() []Country {
	return append([]Country(nil), d.sorted...)
}
