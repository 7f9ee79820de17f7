package models

const (
	STATUS_UP         = "UP"
	STATUS_DEGRADED   = "DEGRADED"
	STATUS_DOWN       = "DOWN"
	HEALTH_ISSUE_NONE = "None reported"
	//
	SERVICE_BUS                   = "Azure Service Bus"
	SQS_QUEUE                     = "AWS SQS"
	RABBITMQ_QUEUE                = "RabbitMQ"
	KAFKA_TOPIC                   = "Kafka"
	REDIS_TRACKER                 = "Redis Delivery Tracker"
	COSMOS_DB                     = "Cosmos DB"
	DYNAMO_DB                     = "DynamoDB"
	POSTGRES_DB                   = "PostgreSQL"
	MONGO_DB                      = "MongoDB"
	COUCHBASE_DB                  = "Couchbase"
	SCHEMA_STORAGE                = "Schema storage"
	REPORTS_STORE                 = "Reports store"
	DEFAULT_REPORT_SCHEMA_VERSION = "0.0.1"

	DEX_INGEST_DATE_TIME_KEY_NAME = "dex_ingest_datetime"
) // .const

type DispositionType string

const (
	DispositionTypeAdd     DispositionType = "ADD"
	DispositionTypeReplace DispositionType = "REPLACE"
)

// Source is the inbound transport a report arrived on.
type Source string

const (
	SourceServiceBus Source = "SERVICEBUS"
	SourceRabbitMQ   Source = "RABBITMQ"
	SourceAWS        Source = "AWS"
	SourceKafka      Source = "KAFKA"
	SourceLocal      Source = "LOCAL"
)

const (
	StageStatusSuccess = "SUCCESS"
	StageStatusFailure = "FAILURE"
)
