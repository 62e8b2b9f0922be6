package models

// MITRETactic is an ATT&CK tactic.
type MITRETactic struct {
	ID        string `json:"id"`         // e.g., TA0043
	Name      string `json:"name"`       // e.g., Reconnaissance
	ShortName string `json:"short_name"` // e.g., reconnaissance
	URL       string `json:"url"`
}

// MITRETechnique is an ATT&CK technique or sub-technique.
type MITRETechnique struct {
	ID             string   `json:"id"` // e.g., T1589.001
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	TacticIDs      []string `json:"tactic_ids"`
	Tactics        []string `json:"tactics"`
	IsSubTechnique bool     `json:"is_sub_technique"`
	ParentID       string   `json:"parent_id,omitempty"`
	URL            string   `json:"url"`
}

// TechniqueRef is a technique as attached to an analysis.
type TechniqueRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Tactic string `json:"tactic,omitempty"`
}

// String renders "T1589.001 - Gather Victim Identity Information".
func (t TechniqueRef) String() string {
	if t.Name == "" {
		return t.ID
	}
	return t.ID + " - " + t.Name
}

// MITRETechniqueFilter narrows technique listings.
type MITRETechniqueFilter struct {
	Tactic string
	Search string
}

// MITREStats summarizes the loaded catalog.
type MITREStats struct {
	Tactics       int            `json:"tactics"`
	Techniques    int            `json:"techniques"`
	SubTechniques int            `json:"sub_techniques"`
	ByTactic      map[string]int `json:"by_tactic"`
}

// NavigatorLayer is an ATT&CK Navigator layer document.
type NavigatorLayer struct {
	Name        string                `json:"name"`
	Versions    NavigatorVersions     `json:"versions"`
	Domain      string                `json:"domain"`
	Description string                `json:"description"`
	Techniques  []NavigatorTechnique  `json:"techniques"`
	Gradient    NavigatorGradient     `json:"gradient"`
	Legend      []NavigatorLegendItem `json:"legendItems,omitempty"`
}

type NavigatorVersions struct {
	Attack    string `json:"attack"`
	Navigator string `json:"navigator"`
	Layer     string `json:"layer"`
}

type NavigatorTechnique struct {
	TechniqueID string `json:"techniqueID"`
	Tactic      string `json:"tactic,omitempty"`
	Score       int    `json:"score"`
	Comment     string `json:"comment,omitempty"`
	Enabled     bool   `json:"enabled"`
}

type NavigatorGradient struct {
	Colors   []string `json:"colors"`
	MinValue int      `json:"minValue"`
	MaxValue int      `json:"maxValue"`
}

type NavigatorLegendItem struct {
	Label string `json:"label"`
	Color string `json:"color"`
}
