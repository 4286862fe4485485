package common

const (
	ComponentEngine        = "engine"
	ComponentScanner       = "scanner"
	ComponentPendingBridge = "pending-bridge"
	ComponentNodeClient    = "node-client"
	ComponentChainCache    = "chain-cache"
	ComponentRPCServer     = "rpc-server"
	ComponentAPI           = "api"
	ComponentMetrics       = "metrics"
)

var AllComponents = map[string]struct{}{
	ComponentEngine:        {},
	ComponentScanner:       {},
	ComponentPendingBridge: {},
	ComponentNodeClient:    {},
	ComponentChainCache:    {},
	ComponentRPCServer:     {},
	ComponentAPI:           {},
	ComponentMetrics:       {},
}
