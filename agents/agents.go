// Package agents defines the catalog of retrieval/reasoning strategies a
// turn can be routed to. The values travel on the wire as agent_type; names
// and descriptions are presentation strings.
package agents

// Agent describes one selectable strategy.
type Agent struct {
	Value string
	Name  string
	Desc  string
}

// Auto lets the upstream router pick the strategy; it is never sent as an
// explicit agent_type.
const Auto = "auto"

var catalog = []Agent{
	{Value: Auto, Name: "Auto", Desc: "自動選擇最佳策略"},
	{Value: "graph_agent", Name: "Graph Agent", Desc: "專注知識圖譜檢索"},
	{Value: "hybrid_agent", Name: "Hybrid Agent", Desc: "混合圖譜與文件檢索"},
	{Value: "naive_rag_agent", Name: "Naive RAG", Desc: "基礎檢索增強生成"},
	{Value: "deep_research_agent", Name: "Deep Research", Desc: "多步深入研究流程"},
	{Value: "fusion_agent", Name: "Fusion Agent", Desc: "整合多種資訊來源"},
}

// List returns the full catalog in display order.
func List() []Agent {
	return append([]Agent(nil), catalog...)
}

// Lookup resolves an agent by wire value.
func Lookup(value string) (Agent, bool) {
	for _, a := range catalog {
		if a.Value == value {
			return a, true
		}
	}
	return Agent{}, false
}

// DisplayName returns the catalog name for value, falling back to the value
// itself for agents this client does not know about.
func DisplayName(value string) string {
	if a, ok := Lookup(value); ok {
		return a.Name
	}
	return value
}
