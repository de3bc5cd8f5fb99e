package issue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	require.Equal(t, SeverityError, ParseSeverity(""))
	require.Equal(t, SeverityWarning, ParseSeverity(" Warning "))
	require.Equal(t, SeverityInfo, ParseSeverity("info"))
	require.Equal(t, SeverityError, ParseSeverity("critical"))
}

func TestSummarizeAndTruncate(t *testing.T) {
	issues := []Issue{
		{ID: "a", Severity: SeverityError},
		{ID: "b", Severity: SeverityWarning},
		{ID: "c", Severity: SeverityWarning},
		{ID: "d", Severity: SeverityInfo},
	}
	s := Summarize(issues)
	require.Equal(t, Summary{Errors: 1, Warnings: 2, Infos: 1, IssuesTotal: 4}, s)

	kept, truncated := Truncate(issues, 2)
	require.True(t, truncated)
	require.Len(t, kept, 2)

	kept, truncated = Truncate(issues, 0)
	require.False(t, truncated)
	require.Len(t, kept, 4)
}

func TestSort(t *testing.T) {
	issues := []Issue{
		{ID: "C2-REQ-APP-1-name", Severity: SeverityError, Level: "C2", Type: TypeMissingRequired},
		{ID: "CFG-VULN-MISSINGFIELD", Severity: SeverityWarning, Level: "ALL", Type: TypeConfigMissingField},
		{ID: "C1-DUP-PRJ-1", Severity: SeverityError, Level: "C1", Type: TypeMissingRequired},
		{ID: "RULE-R1-PRJ-1", Severity: SeverityInfo, Level: "C1", Type: TypeRule},
	}
	Sort(issues)
	ids := make([]string, len(issues))
	for i, iss := range issues {
		ids[i] = iss.ID
	}
	require.Equal(t, []string{"C1-DUP-PRJ-1", "C2-REQ-APP-1-name", "CFG-VULN-MISSINGFIELD", "RULE-R1-PRJ-1"}, ids)
}

func TestForRecord(t *testing.T) {
	issues := []Issue{
		{ID: "C2-ORPHAN-APP-0001", Severity: SeverityError, Level: "C2", HumanID: "APP-0001", ParentRef: "PRJ-9999", Type: TypeOrphan},
		{ID: "RULE-R1-APP-0001", Severity: SeverityWarning, Level: "C2", HumanID: "APP-0001", Type: TypeRule},
		{ID: "C3-REQ-CMP-1-name", Severity: SeverityError, Level: "C3", HumanID: "CMP-1", Type: TypeMissingRequired},
	}

	got := ForRecord(issues, "prj-9999")
	require.Len(t, got, 1)
	require.Equal(t, "C2-ORPHAN-APP-0001", got[0].ID)

	got = ForRecord(issues, "APP-0001")
	require.Len(t, got, 2)
	require.Equal(t, SeverityError, got[0].Severity)
}
