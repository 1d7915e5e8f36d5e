package service

import "strings"

// Instrument is a psychometric test family.
type Instrument struct {
	Family string
	Title  string
	// SnapshotColumn is the users column holding the family's latest score.
	// Families without one are recorded in history only.
	SnapshotColumn string
}

var instruments = map[string]Instrument{
	"PCL5":   {Family: "PCL5", Title: "PTSD Checklist for DSM-5", SnapshotColumn: "snapshot_pcl5_total"},
	"DERS18": {Family: "DERS18", Title: "Emotion Regulation (DERS-18)", SnapshotColumn: "snapshot_ders_total"},
	"AAQ":    {Family: "AAQ", Title: "Psychological Inflexibility (AAQ-II)", SnapshotColumn: "snapshot_aaq_total"},
	"PDEQ":   {Family: "PDEQ", Title: "Peritraumatic Dissociative Experiences Questionnaire"},
}

// FamilyOf extracts the family tag from a test type code: "PCL5-V1" -> "PCL5".
func FamilyOf(testType string) string {
	family, _, _ := strings.Cut(strings.ToUpper(strings.TrimSpace(testType)), "-")
	return family
}

// LookupInstrument matches the family tag of testType exactly.
// "PCL5-V2" matches PCL5; "MY-PCL5-TEST" matches nothing.
func LookupInstrument(testType string) (Instrument, bool) {
	inst, ok := instruments[FamilyOf(testType)]
	return inst, ok
}
