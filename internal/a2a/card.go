package a2a

import "strings"

// AgentCard describes the agent at /.well-known/agent.json.
type AgentCard struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	URL                string            `json:"url"`
	Version            string            `json:"version"`
	ProtocolVersion    string            `json:"protocolVersion"`
	DefaultInputModes  []string          `json:"defaultInputModes"`
	DefaultOutputModes []string          `json:"defaultOutputModes"`
	Capabilities       Capabilities      `json:"capabilities"`
	Skills             []Skill           `json:"skills"`
	Endpoints          map[string]string `json:"endpoints"`
}

type Capabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

const (
	cardPath  = "/.well-known/agent.json"
	rpcPath   = "/a2a/recommend"
	version   = "1.0.0"
	protoVers = "0.3.0"
)

// NewAgentCard builds the card for an agent served at baseURL.
func NewAgentCard(baseURL string, locales []string) AgentCard {
	baseURL = strings.TrimRight(baseURL, "/")
	return AgentCard{
		Name: "Student Recommendation Agent",
		Description: "Builds an individualized support profile for a student from a free-text description: " +
			"strengths, challenges, needs, goals and the means to reach them.",
		URL:                baseURL + rpcPath,
		Version:            version,
		ProtocolVersion:    protoVers,
		DefaultInputModes:  []string{"text", "data"},
		DefaultOutputModes: []string{"text", "data"},
		Capabilities:       Capabilities{},
		Skills: []Skill{{
			ID:   "full-profile",
			Name: "Full recommendation profile",
			Description: "Send a description of the student as text. An optional data part may carry " +
				`{"age": number, "gender": "male|female|other|undefined", "locale": "` + strings.Join(locales, "|") + `"}.`,
			Tags:        []string{"education", "recommendation", "support-plan"},
			Examples:    []string{"12 year old who reads well but struggles to stay focused in group work."},
			InputModes:  []string{"text", "data"},
			OutputModes: []string{"text", "data"},
		}},
		Endpoints: map[string]string{
			"agentCard": baseURL + cardPath,
			"rpc":       baseURL + rpcPath,
		},
	}
}
