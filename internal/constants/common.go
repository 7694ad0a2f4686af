package constants

// Common string constants used throughout the codebase
const (
	// Log levels
	ErrorLevel = "error"

	// Environments
	ProdEnvironment = "prod"
	TestEnvironment = "test"

	// Typed-data domain of the delegation manager contract. Changing either
	// value changes every signing digest, so they are pinned here rather than
	// read from configuration.
	DelegationDomainName    = "DelegationManager"
	DelegationDomainVersion = "1"
)

// Known chain IDs served by the API
const (
	EthereumMainnetChainID uint64 = 1
	BaseChainID            uint64 = 8453
	SepoliaChainID         uint64 = 11155111
)
