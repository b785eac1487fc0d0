package postgres

import (
	"github.com/hyphalmesh/substrate/internal/scheduler"
	"github.com/hyphalmesh/substrate/internal/store"
)

// Compile-time interface satisfaction checks, in the teacher corpus's style
// of asserting store implementations against their interfaces at wiring time.
var (
	_ store.EdgeStore     = (*EdgeStore)(nil)
	_ store.AgentStore    = (*AgentStore)(nil)
	_ store.NutrientStore = (*NutrientStore)(nil)
	_ store.RouteStore    = (*RouteStore)(nil)
	_ store.OutcomeStore  = (*OutcomeStore)(nil)
	_ store.MemoryStore   = (*MemoryStore)(nil)
	_ store.PolicyStore   = (*PolicyStore)(nil)
	_ store.AuditStore    = (*AuditStore)(nil)
	_ store.TenantStore   = (*TenantStore)(nil)

	_ scheduler.TenantLister = (*TenantStore)(nil)
)
