// Package api provides REST API handlers for ChainFilters
// @title ChainFilters API
// @version 1.0
// @description REST API for inspecting Ethereum filters managed by ChainFilters
// @contact.name API Support
// @contact.url https://github.com/goran-ethernal/ChainFilters
// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @basePath /api/v1
// @schemes http https
package api
