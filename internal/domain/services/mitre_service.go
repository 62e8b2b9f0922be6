package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"honeyshield/internal/domain/models"
	"honeyshield/pkg/logger"
)

// Technique ids the mapper emits directly.
const (
	TechniqueGatherIdentity     = "T1589.001"
	TechniqueSearchVictimSites  = "T1594"
	TechniqueEstablishAccounts  = "T1585"
	TechniqueObtainCapabilities = "T1588"
	TechniqueSpearphishService  = "T1566.003"
	TechniqueSpearphishLink     = "T1598.003"
	TechniqueImpersonation      = "T1656"
	TechniquePhishingForInfo    = "T1598"
)

// NoTechniquesText is what FormatTechniques renders for an empty mapping.
const NoTechniquesText = "TBD - Further analysis needed"

// MappingInput is what the mapper looks at for one analyzed message.
type MappingInput struct {
	Score          int
	Notes          []string
	ThreatTypes    []string
	LinkCount      int
	RuleTechniques []string
}

// MITREService holds the ATT&CK techniques relevant to social engineering
// against a decoy profile and maps analyses onto them.
type MITREService struct {
	logger          *logger.Logger
	mediumThreshold int
	highThreshold   int

	mu                 sync.RWMutex
	tactics            map[string]*models.MITRETactic
	tacticsByShortName map[string]*models.MITRETactic
	techniques         map[string]*models.MITRETechnique
	techniquesByTactic map[string][]*models.MITRETechnique
}

// NewMITREService creates the service with the embedded catalog loaded.
func NewMITREService(mediumThreshold, highThreshold int, log *logger.Logger) *MITREService {
	s := &MITREService{
		logger:             log.WithComponent("mitre-service"),
		mediumThreshold:    mediumThreshold,
		highThreshold:      highThreshold,
		tactics:            make(map[string]*models.MITRETactic),
		tacticsByShortName: make(map[string]*models.MITRETactic),
		techniques:         make(map[string]*models.MITRETechnique),
	}
	s.loadTactics()
	s.loadTechniques()
	s.buildIndexes()

	s.logger.Debug().
		Int("tactics", len(s.tactics)).
		Int("techniques", len(s.techniques)).
		Msg("MITRE catalog loaded")
	return s
}

func (s *MITREService) loadTactics() {
	tactics := []models.MITRETactic{
		{ID: "TA0043", Name: "Reconnaissance", ShortName: "reconnaissance"},
		{ID: "TA0042", Name: "Resource Development", ShortName: "resource-development"},
		{ID: "TA0001", Name: "Initial Access", ShortName: "initial-access"},
		{ID: "TA0002", Name: "Execution", ShortName: "execution"},
		{ID: "TA0005", Name: "Defense Evasion", ShortName: "defense-evasion"},
	}
	for i := range tactics {
		tactics[i].URL = "https://attack.mitre.org/tactics/" + tactics[i].ID
		s.tactics[tactics[i].ID] = &tactics[i]
		s.tacticsByShortName[tactics[i].ShortName] = &tactics[i]
	}
}

func (s *MITREService) loadTechniques() {
	techniques := []models.MITRETechnique{
		// Reconnaissance
		{ID: "T1589", Name: "Gather Victim Identity Information", Tactics: []string{"reconnaissance"},
			Description: "Adversaries gather identity details such as names, credentials and contact data about a target."},
		{ID: "T1589.001", Name: "Gather Victim Identity Information: Credentials", Tactics: []string{"reconnaissance"},
			Description: "Credentials or the personal details used to reset them are solicited from the target."},
		{ID: "T1589.002", Name: "Gather Victim Identity Information: Email Addresses", Tactics: []string{"reconnaissance"},
			Description: "Personal or corporate email addresses are collected for follow-up contact."},
		{ID: "T1589.003", Name: "Gather Victim Identity Information: Employee Names", Tactics: []string{"reconnaissance"},
			Description: "Names and roles of staff are collected to build target lists."},
		{ID: "T1591", Name: "Gather Victim Org Information", Tactics: []string{"reconnaissance"},
			Description: "Details about the target organization, its structure and operations are collected."},
		{ID: "T1591.004", Name: "Gather Victim Org Information: Identify Roles", Tactics: []string{"reconnaissance"},
			Description: "Key personnel and their access are identified for later targeting."},
		{ID: "T1593", Name: "Search Open Websites/Domains", Tactics: []string{"reconnaissance"},
			Description: "Public websites and social media are searched for information about the target."},
		{ID: "T1593.001", Name: "Search Open Websites/Domains: Social Media", Tactics: []string{"reconnaissance"},
			Description: "Social media profiles are reviewed to learn about and approach the target."},
		{ID: "T1594", Name: "Search Victim-Owned Websites", Tactics: []string{"reconnaissance"},
			Description: "Sites and channels owned by the target are searched for contact and personal data."},
		{ID: "T1598", Name: "Phishing for Information", Tactics: []string{"reconnaissance"},
			Description: "Deceptive messages are sent to elicit sensitive information."},
		{ID: "T1598.003", Name: "Phishing for Information: Spearphishing Link", Tactics: []string{"reconnaissance"},
			Description: "A link in the message leads to a page that harvests information."},

		// Resource Development
		{ID: "T1585", Name: "Establish Accounts", Tactics: []string{"resource-development"},
			Description: "Adversaries create and cultivate personas to build trust with targets."},
		{ID: "T1585.001", Name: "Establish Accounts: Social Media Accounts", Tactics: []string{"resource-development"},
			Description: "Fake social media profiles are created to approach targets."},
		{ID: "T1586", Name: "Compromise Accounts", Tactics: []string{"resource-development"},
			Description: "Existing accounts are taken over to lend credibility to an approach."},
		{ID: "T1586.001", Name: "Compromise Accounts: Social Media Accounts", Tactics: []string{"resource-development"},
			Description: "A hijacked social media account is used to contact the target."},
		{ID: "T1588", Name: "Obtain Capabilities", Tactics: []string{"resource-development"},
			Description: "Tooling or infrastructure is acquired to support the operation."},

		// Initial Access
		{ID: "T1566", Name: "Phishing", Tactics: []string{"initial-access"},
			Description: "Electronic messages are used to gain access to victim systems."},
		{ID: "T1566.003", Name: "Phishing: Spearphishing via Service", Tactics: []string{"initial-access"},
			Description: "Third-party services such as social media or messaging apps carry the lure."},

		// Execution
		{ID: "T1204", Name: "User Execution", Tactics: []string{"execution"},
			Description: "The target is persuaded to open a link or file."},
		{ID: "T1204.001", Name: "User Execution: Malicious Link", Tactics: []string{"execution"},
			Description: "The target is persuaded to click a link."},

		// Defense Evasion
		{ID: "T1656", Name: "Impersonation", Tactics: []string{"defense-evasion"},
			Description: "The adversary poses as a trusted party such as an official, recruiter or authority."},
	}

	for i := range techniques {
		t := &techniques[i]
		if dot := strings.IndexByte(t.ID, '.'); dot > 0 {
			t.IsSubTechnique = true
			t.ParentID = t.ID[:dot]
			t.URL = "https://attack.mitre.org/techniques/" + t.ID[:dot] + "/" + t.ID[dot+1:]
		} else {
			t.URL = "https://attack.mitre.org/techniques/" + t.ID
		}
		s.techniques[t.ID] = t
	}
}

func (s *MITREService) buildIndexes() {
	s.techniquesByTactic = make(map[string][]*models.MITRETechnique)
	for _, tech := range s.techniques {
		tech.TacticIDs = tech.TacticIDs[:0]
		for _, short := range tech.Tactics {
			s.techniquesByTactic[short] = append(s.techniquesByTactic[short], tech)
			if tactic, ok := s.tacticsByShortName[short]; ok {
				tech.TacticIDs = append(tech.TacticIDs, tactic.ID)
			}
		}
	}
	for _, techs := range s.techniquesByTactic {
		sort.Slice(techs, func(i, j int) bool { return techs[i].ID < techs[j].ID })
	}
}

// MapAnalysis maps an analyzed message onto ATT&CK techniques. The result
// keeps first-seen order without duplicates.
func (s *MITREService) MapAnalysis(in MappingInput) []models.TechniqueRef {
	var ids []string

	if in.Score >= s.mediumThreshold {
		ids = append(ids, TechniqueGatherIdentity)
	}
	for _, note := range in.Notes {
		if strings.Contains(strings.ToLower(note), "private information request") {
			ids = append(ids, TechniqueSearchVictimSites)
			break
		}
	}
	if in.Score >= s.highThreshold {
		ids = append(ids, TechniqueEstablishAccounts, TechniqueObtainCapabilities)
	}

	// Classification driven mappings only apply once the message is risky.
	if in.Score >= s.mediumThreshold {
		for _, tt := range in.ThreatTypes {
			switch tt {
			case ThreatTypePlatformMigration:
				ids = append(ids, TechniqueSpearphishService)
			case ThreatTypeAuthority:
				ids = append(ids, TechniqueImpersonation)
			case ThreatTypeInfoHarvesting:
				ids = append(ids, TechniquePhishingForInfo)
			}
		}
		if in.LinkCount > 0 {
			ids = append(ids, TechniqueSpearphishLink)
		}
	}

	for _, id := range in.RuleTechniques {
		ids = append(ids, strings.ToUpper(strings.TrimSpace(id)))
	}
	ids = models.MergeUnique(nil, ids)

	refs := make([]models.TechniqueRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, s.Ref(id))
	}
	return refs
}

// Ref resolves a technique id to a reference. Sub-techniques carry their
// parent's name ("Parent: Sub" is cut at the colon) so alert text reads
// "T1589.001 - Gather Victim Identity Information". Unknown ids are
// returned with an empty name.
func (s *MITREService) Ref(id string) models.TechniqueRef {
	id = strings.ToUpper(strings.TrimSpace(id))
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref := models.TechniqueRef{ID: id}
	if t, ok := s.techniques[id]; ok {
		ref.Name, _, _ = strings.Cut(t.Name, ": ")
		if len(t.Tactics) > 0 {
			ref.Tactic = t.Tactics[0]
		}
	}
	return ref
}

// FormatTechniques renders refs the way they are shown to analysts.
func FormatTechniques(refs []models.TechniqueRef) string {
	if len(refs) == 0 {
		return NoTechniquesText
	}
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}

// GetTechnique gets a technique by ID
func (s *MITREService) GetTechnique(id string) *models.MITRETechnique {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.techniques[strings.ToUpper(id)]
}

// ListTactics lists all tactics sorted by id.
func (s *MITREService) ListTactics() []*models.MITRETactic {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.MITRETactic, 0, len(s.tactics))
	for _, t := range s.tactics {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ListTechniques lists techniques with optional filtering
func (s *MITREService) ListTechniques(filter *models.MITRETechniqueFilter) []*models.MITRETechnique {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.MITRETechnique
	for _, tech := range s.techniques {
		if filter != nil {
			if filter.Tactic != "" && !containsTactic(tech, filter.Tactic) {
				continue
			}
			if filter.Search != "" {
				q := strings.ToLower(filter.Search)
				if !strings.Contains(strings.ToLower(tech.Name), q) &&
					!strings.Contains(strings.ToLower(tech.ID), q) &&
					!strings.Contains(strings.ToLower(tech.Description), q) {
					continue
				}
			}
		}
		result = append(result, tech)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func containsTactic(tech *models.MITRETechnique, tactic string) bool {
	for i, short := range tech.Tactics {
		if strings.EqualFold(short, tactic) {
			return true
		}
		if i < len(tech.TacticIDs) && strings.EqualFold(tech.TacticIDs[i], tactic) {
			return true
		}
	}
	return false
}

// GenerateNavigatorLayer builds an ATT&CK Navigator layer scored by how often
// each technique was observed.
func (s *MITREService) GenerateNavigatorLayer(name string, counts []models.TechniqueCount) *models.NavigatorLayer {
	maxCount := 1
	for _, c := range counts {
		if c.Count > maxCount {
			maxCount = c.Count
		}
	}

	techniques := make([]models.NavigatorTechnique, 0, len(counts))
	for _, c := range counts {
		if c.Count <= 0 {
			continue
		}
		ref := s.Ref(c.TechniqueID)
		techniques = append(techniques, models.NavigatorTechnique{
			TechniqueID: ref.ID,
			Tactic:      ref.Tactic,
			Score:       (c.Count * 100) / maxCount,
			Comment:     fmt.Sprintf("Observed %d times", c.Count),
			Enabled:     true,
		})
	}
	sort.Slice(techniques, func(i, j int) bool { return techniques[i].TechniqueID < techniques[j].TechniqueID })

	if name == "" {
		name = "Honeyshield observed techniques"
	}
	return &models.NavigatorLayer{
		Name:        name,
		Versions:    models.NavigatorVersions{Attack: "15", Navigator: "4.9.1", Layer: "4.5"},
		Domain:      "enterprise-attack",
		Description: "Techniques mapped from messages received by decoy profiles",
		Techniques:  techniques,
		Gradient: models.NavigatorGradient{
			Colors:   []string{"#ffffff", "#ffa726", "#ff0000"},
			MinValue: 0,
			MaxValue: 100,
		},
		Legend: []models.NavigatorLegendItem{
			{Label: "rarely observed", Color: "#ffffff"},
			{Label: "frequently observed", Color: "#ff0000"},
		},
	}
}

// GetStats returns catalog statistics
func (s *MITREService) GetStats() *models.MITREStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.MITREStats{
		Tactics:  len(s.tactics),
		ByTactic: make(map[string]int, len(s.techniquesByTactic)),
	}
	for _, tech := range s.techniques {
		if tech.IsSubTechnique {
			stats.SubTechniques++
		} else {
			stats.Techniques++
		}
	}
	for tactic, techs := range s.techniquesByTactic {
		stats.ByTactic[tactic] = len(techs)
	}
	return stats
}
