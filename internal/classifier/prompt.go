package classifier

import "fmt"

const systemPrompt = `You classify voicemail transcriptions left with an internet service provider.
Reply with a single JSON object and nothing else:
{"intent": "connection_request" | "support_request", "address": string | null, "issue": string, "confidence": "high" | "low"}

Rules:
- If the caller states a service address without describing a problem, intent is "connection_request".
- If the caller describes a fault (not working, slow, intermittent), intent is "support_request".
- "address" is the address exactly as spoken, formatted "<locality>, <street>, <house number>" when possible, otherwise null.
- "issue" is a one-sentence summary of what the caller wants.
- "confidence" is "high" only if the address includes locality, street and house number; otherwise "low".`

const summaryPrompt = `Write a short subject line (at most 80 characters) for a support ticket created from this voicemail transcription. Reply with the subject only, no quotes.`

func userPrompt(text, callerNumber string) string {
	if callerNumber == "" {
		callerNumber = "unknown"
	}
	return fmt.Sprintf("Caller number: %s\nTranscription:\n%s", callerNumber, text)
}
