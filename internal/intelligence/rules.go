package intelligence

import "github.com/a3tai/mcp-pdf-formfill/internal/interview"

// defaultRules returns the built-in label rules
func defaultRules() []Rule {
	return []Rule{
		{
			Name:     "ssn_keywords",
			Type:     interview.TypeSSN,
			Keywords: []string{"ssn", "social security", "social security number", "taxpayer identification number", "tin", "itin"},
			Patterns: []string{`\bss\s*#`, `\bsoc(ial)?\.?\s*sec(urity)?\.?\b`},
			Exclude:  []string{"employer"},
			Weight:   1.0, MinConfidence: 0.3, Enabled: true,
		},
		{
			Name:     "email_keywords",
			Type:     interview.TypeEmail,
			Keywords: []string{"email", "e-mail", "email address", "e-mail address"},
			Weight:   1.0, MinConfidence: 0.3, Enabled: true,
		},
		{
			Name:     "phone_keywords",
			Type:     interview.TypePhone,
			Keywords: []string{"phone", "telephone", "mobile", "cell", "fax", "phone number", "contact number", "daytime phone"},
			Patterns: []string{`\btel\b\.?`, `\bph\.?\s*(no|#)`},
			Weight:   0.95, MinConfidence: 0.3, Enabled: true,
		},
		{
			Name:     "zip_keywords",
			Type:     interview.TypeZip,
			Keywords: []string{"zip", "zip code", "zipcode", "postal code", "postcode"},
			Patterns: []string{`\bzip\s*\+\s*4\b`},
			Weight:   1.0, MinConfidence: 0.3, Enabled: true,
		},
		{
			Name:     "date_keywords",
			Type:     interview.TypeDate,
			Keywords: []string{"date", "dob", "date of birth", "birth date", "birthdate", "effective date"},
			Patterns: []string{`\b(mm|dd)\s*/\s*(dd|mm)\s*/\s*(yy|yyyy)\b`},
			Exclude:  []string{"update", "candidate"},
			Weight:   0.9, MinConfidence: 0.3, Enabled: true,
		},
		{
			Name:     "name_keywords",
			Type:     interview.TypeName,
			Keywords: []string{"name", "full name", "first name", "last name", "middle name", "surname", "given name", "family name"},
			Exclude:  []string{"username", "user name", "file name", "filename", "business", "company"},
			Weight:   0.8, MinConfidence: 0.3, Enabled: true,
		},
		{
			Name:     "address_keywords",
			Type:     interview.TypeAddress,
			Keywords: []string{"address", "street", "street address", "mailing address", "city", "apt", "apartment", "suite"},
			Exclude:  []string{"email", "e-mail", "ip", "web"},
			Weight:   0.8, MinConfidence: 0.3, Enabled: true,
		},
	}
}
