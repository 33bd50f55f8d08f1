package llm

import (
	"morgus/internal/agent/ports"
)

// Router selects the LLM client for a given phase. The BUILD phase may use a
// dedicated code model; every other phase uses the default model.
type Router struct {
	defaultClient ports.LLMClient
	codeClient    ports.LLMClient
}

// NewRouter builds a router. codeClient may equal defaultClient when no
// specialized model is configured.
func NewRouter(defaultClient, codeClient ports.LLMClient) *Router {
	if codeClient == nil {
		codeClient = defaultClient
	}
	return &Router{defaultClient: defaultClient, codeClient: codeClient}
}

// ClientFor returns the client to use for the named phase.
func (r *Router) ClientFor(phase string) ports.LLMClient {
	if phase == "BUILD" && r.codeClient != nil {
		return r.codeClient
	}
	return r.defaultClient
}
