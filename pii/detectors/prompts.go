package pii

import "fmt"

const llamaGuardPromptTemplate = `Analyze the following text and identify all personally identifiable information (PII).

For each PII found, return a JSON object with:
- "type": the category (name, email, phone, address, ssn, credit_card, date_of_birth, etc.)
- "value": the exact text that contains PII
- "start": character position where it starts
- "end": character position where it ends

Return a JSON array of all PII found. If no PII found, return an empty array [].

Text to analyze:
%s

PII found (JSON array):`

const openAISystemPrompt = `You are a strict PII detection system. Find ALL personally identifiable information.

IMPORTANT: Always detect these types:
- name: Any person's full name or partial name (first name, last name, or both)
- email: Email addresses
- phone: Phone numbers in any format
- address: Physical addresses, cities, streets
- ssn: Social security numbers
- credit_card: Credit/debit card numbers
- date: Dates that could be birthdays or significant personal dates
- ip_address: IP addresses

Return JSON: {"pii": [{"type": "...", "value": "exact text", "start": position, "end": position}]}
If no PII found, return: {"pii": []}

Be thorough. Flagging something that is not PII is better than missing PII.`

func buildLlamaGuardPrompt(text string) string {
	return fmt.Sprintf(llamaGuardPromptTemplate, text)
}

func buildOpenAIUserPrompt(text string) string {
	return "Find ALL PII in this text:\n\n" + text
}
