package routing

import (
	"errors"
	"testing"

	"contact-automation/internal/classifier"
	"contact-automation/internal/coverage"
)

func TestDecide(t *testing.T) {
	high := classifier.Result{Intent: classifier.IntentConnection, Address: "Волгоград, улица Мира, 10", Confidence: classifier.ConfidenceHigh}
	low := classifier.Result{Intent: classifier.IntentConnection, Address: "Волгоград, Ленина", Confidence: classifier.ConfidenceLow}
	support := classifier.Result{Intent: classifier.IntentSupport, Confidence: classifier.ConfidenceHigh}

	cases := []struct {
		name   string
		res    classifier.Result
		cov    coverage.Result
		covErr error
		want   Action
		reason string
	}{
		{"support ignores coverage", support, coverage.Result{Available: false}, nil, ActionSupportTicket, "support_request"},
		{"low confidence", low, coverage.Result{}, nil, ActionSalesLead, "low_confidence"},
		{"coverage failed", high, coverage.Result{}, errors.New("timeout"), ActionSalesLead, "coverage_unavailable"},
		{"covered", high, coverage.Result{Available: true}, nil, ActionSalesLead, "covered"},
		{"not covered", high, coverage.Result{Available: false}, nil, ActionWaitlist, "not_covered"},
		{"default classification", classifier.Default(), coverage.Result{}, nil, ActionSalesLead, "low_confidence"},
	}
	for _, tc := range cases {
		d := Decide(tc.res, tc.cov, tc.covErr)
		if d.Action != tc.want || d.Reason != tc.reason {
			t.Fatalf("%s: got %s/%s want %s/%s", tc.name, d.Action, d.Reason, tc.want, tc.reason)
		}
	}
}

func TestNeedsCoverage(t *testing.T) {
	if NeedsCoverage(classifier.Result{Intent: classifier.IntentSupport, Confidence: classifier.ConfidenceHigh}) {
		t.Fatalf("support requests never need coverage")
	}
	if NeedsCoverage(classifier.Default()) {
		t.Fatalf("default classification has no address to check")
	}
	if !NeedsCoverage(classifier.Result{Intent: classifier.IntentConnection, Confidence: classifier.ConfidenceHigh}) {
		t.Fatalf("confident connection request needs coverage")
	}
}
