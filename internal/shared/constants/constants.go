package constants

const (
	// Environment constants
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"

	// Admin list pagination
	DefaultPage   = 1
	AdminPageSize = 10

	// HTTP Headers
	HeaderContentType   = "Content-Type"
	HeaderXRequestID    = "X-Request-ID"
	HeaderTelegramToken = "X-Telegram-Bot-Api-Secret-Token"

	// Content Types
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"

	// Database table names
	TableUsers                = "users"
	TableEntitlements         = "entitlements"
	TableEntitlementResources = "entitlement_resources"

	// Redis key prefixes
	RedisKeyConversation   = "keygate:conversation:"
	RedisKeyReminder       = "keygate:reminder:"
	RedisKeyPollingOffset  = "keygate:telegram:offset"
	RedisKeyRateLimitScope = "keygate:ratelimit:"
)
