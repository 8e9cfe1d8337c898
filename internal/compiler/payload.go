// Package compiler builds the CAROL server's nested QueryGroups JSON
// (probe and export payload shapes) from a rule set.
package compiler

// SelectedOption mirrors the server's per-rule metadata block.
type SelectedOption struct {
	FieldName        string   `json:"FieldName"`
	DisplayText      string   `json:"DisplayText"`
	Columns          []string `json:"Columns"`
	Selectable       bool     `json:"Selectable"`
	InputType        string   `json:"InputType"`
	RuleType         int      `json:"RuleType"`
	Options          any      `json:"Options"`
	TargetCollection string   `json:"TargetCollection"`
	UnderDevelopment bool     `json:"UnderDevelopment"`
}

// QueryRule is one compiled rule inside a QueryGroup.
type QueryRule struct {
	RuleType       string         `json:"RuleType"`
	Values         []string       `json:"Values"`
	Columns        []string       `json:"Columns"`
	Operator       string         `json:"Operator"`
	SelectedOption SelectedOption `json:"selectedOption"`
	OverrideColumn string         `json:"overrideColumn"`
}

// QueryGroup is the server's AND/OR container of rules.
type QueryGroup struct {
	QueryRules            []QueryRule `json:"QueryRules"`
	AndOr                 string      `json:"AndOr"`
	InLastSearch          bool        `json:"inLastSearch"`
	EditedSinceLastSearch bool        `json:"editedSinceLastSearch"`
}

func newGroup() QueryGroup {
	return QueryGroup{AndOr: "and"}
}

// ProbePayload is the count-only request body.
type ProbePayload struct {
	ResultSetSize    int          `json:"ResultSetSize"`
	ResultSetOffset  int          `json:"ResultSetOffset"`
	QueryGroups      []QueryGroup `json:"QueryGroups"`
	AndOr            string       `json:"AndOr"`
	SortColumn       *string      `json:"SortColumn"`
	SortDescending   bool         `json:"SortDescending"`
	TargetCollection string       `json:"TargetCollection"`
	SessionID        int          `json:"SessionId"`
}

// ExportPayload is the full-result download request body.
type ExportPayload struct {
	QueryGroups      []QueryGroup `json:"QueryGroups"`
	AndOr            string       `json:"AndOr"`
	TargetCollection string       `json:"TargetCollection"`
	ExportFormat     string       `json:"ExportFormat"`
	SessionID        int          `json:"SessionId"`
	ResultSetSize    int          `json:"ResultSetSize"`
	SortDescending   bool         `json:"SortDescending"`
}

// ProbeSessionID and ExportSessionID are the server's hardcoded session
// identifiers. Per DESIGN NOTE §9 #4 in spec.md: the server tolerates
// reuse, do not randomize these without evidence otherwise.
const (
	ProbeSessionID  = 100000
	ExportSessionID = 100100
)

func newProbe(topAndOr string) ProbePayload {
	return ProbePayload{
		ResultSetSize:    50,
		ResultSetOffset:  0,
		AndOr:            topAndOr,
		SortDescending:   true,
		TargetCollection: "cases",
		SessionID:        ProbeSessionID,
	}
}

func newExport(topAndOr string) ExportPayload {
	return ExportPayload{
		AndOr:            topAndOr,
		TargetCollection: "cases",
		ExportFormat:     "summary",
		SessionID:        ExportSessionID,
		ResultSetSize:    50,
		SortDescending:   true,
	}
}
