package analysis

import (
	"encoding/json"
	"testing"
)

func TestNormalizeSnakeCaseReply(t *testing.T) {
	raw := json.RawMessage(`{
		"summary": "Clear payment dispute.",
		"facts": ["Invoice sent on 2026-01-05", "No payment received"],
		"legal_issues": ["Default of payment"],
		"claim_amount": 1500.50,
		"confidence": 0.82,
		"missing_information_requirements": [{"id": "contract", "label": "Signed contract", "reason": "Proves the obligation"}]
	}`)

	res, usable := Normalize(raw)
	if !usable {
		t.Fatal("expected usable result")
	}
	if res.Summary != "Clear payment dispute." {
		t.Errorf("summary = %q", res.Summary)
	}
	if len(res.Facts) != 2 {
		t.Errorf("facts = %v", res.Facts)
	}
	if len(res.LegalIssues) != 1 || res.LegalIssues[0] != "Default of payment" {
		t.Errorf("legalIssues = %v", res.LegalIssues)
	}
	if res.ClaimAmount == nil || *res.ClaimAmount != 1500.50 {
		t.Errorf("claimAmount = %v", res.ClaimAmount)
	}
	if res.Confidence == nil || *res.Confidence != 0.82 {
		t.Errorf("confidence = %v", res.Confidence)
	}
	if len(res.MissingInformation) != 1 || res.MissingInformation[0].ID != "contract" {
		t.Errorf("missingInformation = %v", res.MissingInformation)
	}
	if res.MissingInformation[0].Reason != "Proves the obligation" {
		t.Errorf("reason = %q", res.MissingInformation[0].Reason)
	}
}

func TestNormalizeCamelCaseAliases(t *testing.T) {
	raw := json.RawMessage(`{
		"assessment": "Likely collectible.",
		"legalIssues": ["Breach of contract"],
		"evidenceMissing": ["Delivery note"],
		"claimAmount": "CHF 1'234.50"
	}`)

	res, usable := Normalize(raw)
	if !usable {
		t.Fatal("expected usable result")
	}
	if res.Summary != "Likely collectible." {
		t.Errorf("summary = %q", res.Summary)
	}
	if len(res.EvidenceMissing) != 1 {
		t.Errorf("evidenceMissing = %v", res.EvidenceMissing)
	}
	if res.ClaimAmount == nil || *res.ClaimAmount != 1234.50 {
		t.Errorf("claimAmount = %v", res.ClaimAmount)
	}
}

func TestNormalizeNestedResultObject(t *testing.T) {
	raw := json.RawMessage(`{"result": {"summary": "From the result wrapper.", "suitable": false}}`)

	res, usable := Normalize(raw)
	if !usable {
		t.Fatal("expected usable result")
	}
	if res.Summary != "From the result wrapper." {
		t.Errorf("summary = %q", res.Summary)
	}
	if res.Suitable == nil || *res.Suitable != false {
		t.Errorf("suitable = %v", res.Suitable)
	}
}

func TestNormalizeResultEncodedAsString(t *testing.T) {
	raw := json.RawMessage(`{"result": "{\"summary\": \"Stringified payload.\"}"}`)

	res, usable := Normalize(raw)
	if !usable {
		t.Fatal("expected usable result")
	}
	if res.Summary != "Stringified payload." {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestNormalizeDoubleEncodedPayload(t *testing.T) {
	inner := `{"summary": "Double encoded."}`
	raw, err := json.Marshal(inner)
	if err != nil {
		t.Fatal(err)
	}

	res, usable := Normalize(raw)
	if !usable {
		t.Fatal("expected usable result")
	}
	if res.Summary != "Double encoded." {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestNormalizeThreadPostsTrail(t *testing.T) {
	raw := json.RawMessage(`{
		"thread": {"posts": [
			{"content": "{\"summary\": \"old post\"}"},
			{"content": "{\"summary\": \"newest post wins\"}"}
		]}
	}`)

	res, usable := Normalize(raw)
	if !usable {
		t.Fatal("expected usable result")
	}
	if res.Summary != "newest post wins" {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	for _, raw := range []json.RawMessage{
		nil,
		json.RawMessage(``),
		json.RawMessage(`not json at all`),
		json.RawMessage(`{"unrelated": 1, "noise": true}`),
		json.RawMessage(`{"summary": "[object Object]"}`),
		json.RawMessage(`{"summary": "{{templateVar}}"}`),
	} {
		if _, usable := Normalize(raw); usable {
			t.Errorf("expected unusable for %q", string(raw))
		}
	}
}

func TestNormalizeObjectEntriesInLists(t *testing.T) {
	raw := json.RawMessage(`{"legal_issues": [{"issue": "Late payment"}, {"title": "Interest owed"}, {"noise": 1}]}`)

	res, usable := Normalize(raw)
	if !usable {
		t.Fatal("expected usable result")
	}
	if len(res.LegalIssues) != 2 || res.LegalIssues[0] != "Late payment" || res.LegalIssues[1] != "Interest owed" {
		t.Errorf("legalIssues = %v", res.LegalIssues)
	}
}

func TestNormalizeMissingInfoFromStrings(t *testing.T) {
	raw := json.RawMessage(`{"missing_information": ["Proof of delivery", "Signed contract"]}`)

	res, usable := Normalize(raw)
	if !usable {
		t.Fatal("expected usable result")
	}
	if len(res.MissingInformation) != 2 {
		t.Fatalf("missingInformation = %v", res.MissingInformation)
	}
	if res.MissingInformation[0].ID != "proof-of-delivery" {
		t.Errorf("id = %q", res.MissingInformation[0].ID)
	}
}

func TestNormalizeEmptySectionsStayEmptyLists(t *testing.T) {
	res, usable := Normalize(json.RawMessage(`{"summary": "only a summary"}`))
	if !usable {
		t.Fatal("expected usable result")
	}
	if res.Facts == nil || res.LegalIssues == nil || res.NextActions == nil {
		t.Fatal("expected empty lists, not nil")
	}
	if len(res.Facts) != 0 {
		t.Errorf("facts = %v", res.Facts)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1500.5, 1500.5, true},
		{"1500.50", 1500.5, true},
		{"35,49", 35.49, true},
		{"1.234,56", 1234.56, true},
		{"1,234.56", 1234.56, true},
		{"CHF 2'500.00", 2500, true},
		{"  750  ", 750, true},
		{"", 0, false},
		{"abc", 0, false},
		{true, 0, false},
	}
	for _, tc := range tests {
		got, ok := ParseAmount(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseAmount(%v) = (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSuitableFromString(t *testing.T) {
	res, usable := Normalize(json.RawMessage(`{"suitable": "nein"}`))
	if !usable {
		t.Fatal("expected usable result")
	}
	if res.Suitable == nil || *res.Suitable != false {
		t.Errorf("suitable = %v", res.Suitable)
	}
}
