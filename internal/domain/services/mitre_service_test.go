package services

import (
	"reflect"
	"testing"

	"honeyshield/internal/domain/models"
	"honeyshield/pkg/logger"
)

func refIDs(refs []models.TechniqueRef) []string {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}

func TestMapAnalysis(t *testing.T) {
	svc := NewMITREService(40, 70, logger.Nop())

	tests := []struct {
		name string
		in   MappingInput
		want []string
	}{
		{
			name: "low score maps nothing",
			in:   MappingInput{Score: 30},
			want: []string{},
		},
		{
			name: "medium score",
			in:   MappingInput{Score: 45, ThreatTypes: []string{ThreatTypeAuthority}},
			want: []string{TechniqueGatherIdentity, TechniqueImpersonation},
		},
		{
			name: "private info request below medium",
			in:   MappingInput{Score: 25, Notes: []string{models.NotePrivateInfoRequest}},
			want: []string{TechniqueSearchVictimSites},
		},
		{
			name: "threat types ignored below medium",
			in:   MappingInput{Score: 20, ThreatTypes: []string{ThreatTypePlatformMigration}, LinkCount: 2},
			want: []string{},
		},
		{
			name: "high score with rules",
			in: MappingInput{
				Score:          75,
				Notes:          []string{models.NotePrivateInfoRequest},
				ThreatTypes:    []string{ThreatTypePlatformMigration},
				LinkCount:      1,
				RuleTechniques: []string{"T1566.003", "t1591.004"},
			},
			want: []string{
				TechniqueGatherIdentity,
				TechniqueSearchVictimSites,
				TechniqueEstablishAccounts,
				TechniqueObtainCapabilities,
				TechniqueSpearphishService,
				TechniqueSpearphishLink,
				"T1591.004",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := refIDs(svc.MapAnalysis(tt.in))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MapAnalysis = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatTechniques(t *testing.T) {
	svc := NewMITREService(40, 70, logger.Nop())

	if got := FormatTechniques(nil); got != NoTechniquesText {
		t.Errorf("FormatTechniques(nil) = %q, want %q", got, NoTechniquesText)
	}

	tests := []struct {
		name  string
		score int
		want  string
	}{
		{"medium", 45, "T1589.001 - Gather Victim Identity Information"},
		{"high", 75, "T1589.001 - Gather Victim Identity Information, T1585 - Establish Accounts, T1588 - Obtain Capabilities"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatTechniques(svc.MapAnalysis(MappingInput{Score: tt.score}))
			if got != tt.want {
				t.Errorf("FormatTechniques = %q, want %q", got, tt.want)
			}
		})
	}

	got := FormatTechniques([]models.TechniqueRef{svc.Ref(TechniqueGatherIdentity), svc.Ref(TechniqueSearchVictimSites)})
	if want := "T1589.001 - Gather Victim Identity Information, T1594 - Search Victim-Owned Websites"; got != want {
		t.Errorf("FormatTechniques = %q, want %q", got, want)
	}
}

func TestRefResolvesKnownTechniques(t *testing.T) {
	svc := NewMITREService(40, 70, logger.Nop())

	ref := svc.Ref(" t1594 ")
	if ref.ID != "T1594" || ref.Name == "" {
		t.Fatalf("Ref(t1594) = %+v", ref)
	}
	if unknown := svc.Ref("T9999"); unknown.Name != "" {
		t.Fatalf("Ref(T9999) name = %q, want empty", unknown.Name)
	}
}

func TestGenerateNavigatorLayer(t *testing.T) {
	svc := NewMITREService(40, 70, logger.Nop())
	layer := svc.GenerateNavigatorLayer("decoy", []models.TechniqueCount{
		{TechniqueID: "T1589.001", Count: 10},
		{TechniqueID: "T1594", Count: 5},
	})
	if layer == nil || len(layer.Techniques) != 2 {
		t.Fatalf("layer = %+v", layer)
	}
	if layer.Versions.Layer != "4.5" {
		t.Errorf("layer version = %q, want 4.5", layer.Versions.Layer)
	}

	want := []models.NavigatorTechnique{
		{TechniqueID: "T1589.001", Tactic: "reconnaissance", Score: 100},
		{TechniqueID: "T1594", Tactic: "reconnaissance", Score: 50},
	}
	for i, w := range want {
		got := layer.Techniques[i]
		if got.TechniqueID != w.TechniqueID || got.Tactic != w.Tactic || got.Score != w.Score {
			t.Errorf("technique[%d] = %+v, want id=%s tactic=%s score=%d", i, got, w.TechniqueID, w.Tactic, w.Score)
		}
		if !got.Enabled {
			t.Errorf("technique[%d] not enabled", i)
		}
	}
}
