package pii

import "strings"

// typeMap maps one backend's native type vocabulary onto the canonical taxonomy.
// Lookup is exact; foldCase only lower-cases the input for free-text vocabularies.
type typeMap struct {
	foldCase bool
	table    map[string]PIIType
}

func (m typeMap) lookup(native string) PIIType {
	key := native
	if m.foldCase {
		key = strings.ToLower(key)
	}
	if t, ok := m.table[key]; ok {
		return t
	}
	return PIITypeCustom
}

var llamaGuardTypes = typeMap{
	foldCase: true,
	table: map[string]PIIType{
		"name":            PIITypeName,
		"email":           PIITypeEmail,
		"phone":           PIITypePhone,
		"address":         PIITypeAddress,
		"ssn":             PIITypeSSN,
		"social_security": PIITypeSSN,
		"credit_card":     PIITypeCreditCard,
		"date":            PIITypeDate,
		"date_of_birth":   PIITypeDate,
		"dob":             PIITypeDate,
		"ip":              PIITypeIPAddress,
		"ip_address":      PIITypeIPAddress,
	},
}

var openAITypes = typeMap{
	foldCase: true,
	table: map[string]PIIType{
		"name":        PIITypeName,
		"email":       PIITypeEmail,
		"phone":       PIITypePhone,
		"address":     PIITypeAddress,
		"ssn":         PIITypeSSN,
		"credit_card": PIITypeCreditCard,
		"date":        PIITypeDate,
		"ip_address":  PIITypeIPAddress,
	},
}

var bedrockTypes = typeMap{
	table: map[string]PIIType{
		"NAME":                      PIITypeName,
		"EMAIL":                     PIITypeEmail,
		"PHONE":                     PIITypePhone,
		"ADDRESS":                   PIITypeAddress,
		"SSN":                       PIITypeSSN,
		"US_SOCIAL_SECURITY_NUMBER": PIITypeSSN,
		"CREDIT_DEBIT_NUMBER":       PIITypeCreditCard,
		"IP_ADDRESS":                PIITypeIPAddress,
		"DATE_TIME":                 PIITypeDate,
		"DRIVER_ID":                 PIITypeDriverLicense,
		"PASSPORT_NUMBER":           PIITypePassport,
		"BANK_ACCOUNT_NUMBER":       PIITypeBankAccount,
	},
}

var presidioTypes = typeMap{
	table: map[string]PIIType{
		"PERSON":            PIITypeName,
		"EMAIL_ADDRESS":     PIITypeEmail,
		"PHONE_NUMBER":      PIITypePhone,
		"LOCATION":          PIITypeAddress,
		"US_SSN":            PIITypeSSN,
		"CREDIT_CARD":       PIITypeCreditCard,
		"IP_ADDRESS":        PIITypeIPAddress,
		"DATE_TIME":         PIITypeDate,
		"US_DRIVER_LICENSE": PIITypeDriverLicense,
		"US_PASSPORT":       PIITypePassport,
		"US_BANK_NUMBER":    PIITypeBankAccount,
		"IBAN_CODE":         PIITypeBankAccount,
	},
}

// Labels emitted by the token-classification model (BIO prefixes already stripped)
// and by the regex fallback patterns.
var modelLabelTypes = typeMap{
	table: map[string]PIIType{
		"GIVENNAME":        PIITypeName,
		"SURNAME":          PIITypeName,
		"FIRSTNAME":        PIITypeName,
		"LASTNAME":         PIITypeName,
		"EMAIL":            PIITypeEmail,
		"TELEPHONENUM":     PIITypePhone,
		"STREET":           PIITypeAddress,
		"BUILDINGNUM":      PIITypeAddress,
		"CITY":             PIITypeAddress,
		"ZIPCODE":          PIITypeAddress,
		"SOCIALNUM":        PIITypeSSN,
		"CREDITCARDNUMBER": PIITypeCreditCard,
		"DATEOFBIRTH":      PIITypeDate,
		"DATE":             PIITypeDate,
		"IPADDRESS":        PIITypeIPAddress,
		"DRIVERLICENSENUM": PIITypeDriverLicense,
		"PASSPORTNUM":      PIITypePassport,
		"ACCOUNTNUM":       PIITypeBankAccount,
		"IBAN":             PIITypeBankAccount,
	},
}
