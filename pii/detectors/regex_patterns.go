package pii

// PIIPatterns maps model labels to the expressions used by the regex detector. When a
// pattern has a capture group, the group is reported instead of the whole match.
var PIIPatterns = map[string]string{
	"EMAIL":            `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
	"TELEPHONENUM":     `(?:\+?1[-. ]?)?\(?\b[0-9]{3}\)?[-. ]?[0-9]{3}[-. ][0-9]{4}\b`,
	"SOCIALNUM":        `\b\d{3}-\d{2}-\d{4}\b`,
	"CREDITCARDNUMBER": `\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`,
	"DATEOFBIRTH":      `\b(?:0?[1-9]|1[0-2])[-/](?:0?[1-9]|[12][0-9]|3[01])[-/](?:19|20)\d{2}\b`,
	"ACCOUNTNUM":       `\b(?:account|acct)[\s#:]*(\d{8,12})\b`,
	"DRIVERLICENSENUM": `\b(?:DL|license)[\s#:]*([A-Z][0-9]{8,9})\b`,
	"IPADDRESS":        `\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`,
}
