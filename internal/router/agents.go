package router

import (
	"context"
	"time"

	"github.com/hyphalmesh/substrate/internal/core"
	"github.com/hyphalmesh/substrate/pkg/models"
)

// RegisterAgentInput is the caller-supplied payload for RegisterAgent.
type RegisterAgentInput struct {
	TenantID         string
	AgentID          string
	ProfileEmbedding []float32
	Capabilities     []string
}

// RegisterAgent is a thin, tenant-scoped passthrough to the agent profile
// store (spec.md §4.2's register_agent). Embedding dimension is validated
// on write.
func (s *Service) RegisterAgent(ctx context.Context, in RegisterAgentInput) error {
	if in.TenantID == "" {
		return core.New(core.CodeInvalidArgument, "tenant id required")
	}
	if err := models.ValidateEmbedding(in.ProfileEmbedding); err != nil {
		return core.Wrap(core.CodeInvalidArgument, err, "register agent %s", in.AgentID)
	}
	profile := models.AgentProfile{
		TenantID:         in.TenantID,
		AgentID:          in.AgentID,
		ProfileEmbedding: in.ProfileEmbedding,
		Capabilities:     in.Capabilities,
		Status:           "active",
		LastActive:       time.Now().UTC(),
	}
	if err := s.agents.Upsert(ctx, profile); err != nil {
		return core.Wrap(core.CodeUnavailable, err, "register agent %s", in.AgentID)
	}
	s.audit(ctx, in.TenantID, "register_agent", in.AgentID, "", nil)
	return nil
}

// DeactivateAgent marks an agent profile inactive.
func (s *Service) DeactivateAgent(ctx context.Context, tenantID, agentID string) error {
	if tenantID == "" {
		return core.New(core.CodeInvalidArgument, "tenant id required")
	}
	if err := s.agents.Deactivate(ctx, tenantID, agentID); err != nil {
		return core.Wrap(core.CodeUnavailable, err, "deactivate agent %s", agentID)
	}
	s.audit(ctx, tenantID, "deactivate_agent", agentID, "", nil)
	return nil
}

// ListAgents is a tenant-scoped passthrough to the agent profile store.
func (s *Service) ListAgents(ctx context.Context, tenantID string) ([]models.AgentProfile, error) {
	if tenantID == "" {
		return nil, core.New(core.CodeInvalidArgument, "tenant id required")
	}
	profiles, err := s.agents.List(ctx, tenantID)
	if err != nil {
		return nil, core.Wrap(core.CodeUnavailable, err, "list agents")
	}
	return profiles, nil
}
