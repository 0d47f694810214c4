package constants

// Common string constants used throughout the codebase
const (
	// Log levels
	ErrorLevel = "error"

	// Environments
	ProdEnvironment  = "prod"
	LocalEnvironment = "local"

	// Principal roles
	AdminRole  = "admin"
	SignerRole = "signer"

	// EIP-712 domain parameters for signed account requests
	SigningDomainName    = "KeyfoldAccount"
	SigningDomainVersion = "1"

	// Storage partition labels. Each core component owns exactly one; the
	// layout rejects a second registration of the same label.
	PermissionsStorageLabel = "keyfold.permissions.storage"
	RouterStorageLabel      = "keyfold.router.storage"
	GatewayStorageLabel     = "keyfold.gateway.storage"

	// Environment variable names
	EnvStage       = "STAGE"
	EnvHTTPPort    = "PORT"
	EnvDatabaseURL = "DATABASE_URL"
	EnvJWTSecret   = "JWT_SECRET"
	EnvChainID     = "CHAIN_ID"
)
