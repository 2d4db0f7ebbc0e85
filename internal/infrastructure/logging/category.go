package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	IO              Category = "IO"
	Internal        Category = "Internal"
	Redis           Category = "Redis"
	RabbitMQ        Category = "RabbitMQ"
	MongoDB         Category = "MongoDB"
	Socket          Category = "Socket"
	Campaign        Category = "Campaign"
	Validation      Category = "Validation"
	RequestResponse Category = "RequestResponse"
	Prometheus      Category = "Prometheus"
)

const (
	// General
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"

	// RabbitMQ
	Connect  SubCategory = "Connect"
	Topology SubCategory = "Topology"
	Publish  SubCategory = "Publish"
	Consume  SubCategory = "Consume"

	// Redis
	CacheRead  SubCategory = "CacheRead"
	CacheWrite SubCategory = "CacheWrite"
	Locking    SubCategory = "Locking"

	// Socket
	Relay     SubCategory = "Relay"
	Broadcast SubCategory = "Broadcast"

	// Campaign
	Followup SubCategory = "Followup"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	ClientIp     ExtraKey = "ClientIp"
	HostIp       ExtraKey = "HostIp"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	BodySize     ExtraKey = "BodySize"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	RequestBody  ExtraKey = "RequestBody"
	ResponseBody ExtraKey = "ResponseBody"
	ErrorMessage ExtraKey = "ErrorMessage"

	Exchange   ExtraKey = "Exchange"
	RoutingKey ExtraKey = "RoutingKey"
	Queue      ExtraKey = "Queue"
	Attempt    ExtraKey = "Attempt"
	CacheKey   ExtraKey = "CacheKey"
	Room       ExtraKey = "Room"
	EventKind  ExtraKey = "EventKind"
	CampaignID ExtraKey = "CampaignID"
	ChatID     ExtraKey = "ChatID"
)
