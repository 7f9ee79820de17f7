package appconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/pkg/sloger"
	"github.com/sethvargo/go-envconfig"
) // .import

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

type RootResp struct {
	System     string `json:"system"`
	DexProduct string `json:"dex_product"`
	DexApp     string `json:"dex_app"`
	ServerTime string `json:"server_time"`
} // .rootResp

type AppConfig struct {

	// App and for Logger
	LoggerDebugOn bool   `env:"LOGGER_DEBUG_ON"`
	Environment   string `env:"ENVIRONMENT, default=DEV"`

	// Server
	ServerPort string        `env:"SERVER_PORT, default=8080"`
	Metrics    MetricsConfig `env:", prefix=METRICS_"`

	// Pipeline
	DisableValidation       bool          `env:"DISABLE_VALIDATION, default=false"`
	ForwardValidatedReports bool          `env:"FORWARD_VALIDATED_REPORTS, default=false"`
	Workers                 int           `env:"WORKERS, default=8"`
	MessageTimeout          time.Duration `env:"MESSAGE_TIMEOUT, default=2m"`
	MaxDeliveryCount        int           `env:"MAX_DELIVERY_COUNT, default=10"`
	MaxMessageBytes         int64         `env:"MAX_MESSAGE_BYTES, default=1048576"`
	MaxReplaceMatches       int           `env:"MAX_REPLACE_MATCHES, default=50"`
	RetryMaxAttempts        int           `env:"RETRY_MAX_ATTEMPTS, default=100"`
	RetryInterval           time.Duration `env:"RETRY_INTERVAL, default=500ms"`

	// Containers
	ReportsContainer    string `env:"REPORTS_CONTAINER, default=Reports"`
	DeadLetterContainer string `env:"DEAD_LETTER_CONTAINER, default=ReportsDeadLetter"`

	// Delivery counts for transports without their own
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING"`

	// Local file system config
	LocalReportsFolder string `env:"LOCAL_REPORTS_FOLDER, default=./data/reports"`
	LocalInboxFolder   string `env:"LOCAL_INBOX_FOLDER, default=./data/inbox"`
	LocalEventsFolder  string `env:"LOCAL_EVENTS_FOLDER, default=./data/events"`
	SchemaDir          string `env:"SCHEMA_DIR"`

	// Stores
	CosmosConnection    *CosmosConfig    `env:", prefix=COSMOS_, noinit"`
	DynamoConnection    *DynamoConfig    `env:", prefix=DYNAMO_, noinit"`
	PostgresConnection  *PostgresConfig  `env:", prefix=POSTGRES_, noinit"`
	MongoConnection     *MongoConfig     `env:", prefix=MONGO_, noinit"`
	CouchbaseConnection *CouchbaseConfig `env:", prefix=COUCHBASE_, noinit"`

	// Transports
	SubscriberConnection    *AzureQueueConfig `env:", prefix=SUBSCRIBER_, noinit"`
	PublisherConnection     *AzureQueueConfig `env:", prefix=PUBLISHER_, noinit"`
	SQSSubscriberConnection *SQSConfig        `env:", prefix=SQS_SUBSCRIBER_, noinit"`
	SNSPublisherConnection  *SNSConfig        `env:", prefix=SNS_PUBLISHER_, noinit"`
	RabbitMQConnection      *RabbitMQConfig   `env:", prefix=RABBITMQ_, noinit"`
	KafkaConnection         *KafkaConfig      `env:", prefix=KAFKA_, noinit"`

	// Schema storage
	S3SchemaConnection    *S3StorageConfig    `env:", prefix=S3_SCHEMA_, noinit"`
	AzureSchemaConnection *AzureStorageConfig `env:", prefix=AZURE_SCHEMA_, noinit"`
} // .AppConfig

type MetricsConfig struct {
	PollInterval time.Duration `env:"POLL_INTERVAL, default=30s"`
}

func (conf *AppConfig) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jsonResp, err := json.Marshal(RootResp{
		System:     "DEX",
		DexProduct: "PROCESSING STATUS",
		DexApp:     "report sink",
		ServerTime: time.Now().Format(time.RFC3339Nano),
	}) // .jsonResp
	if err != nil {
		errMsg := "error marshal json for root response"
		logger.Error(errMsg, "error", err.Error())
		http.Error(w, errMsg, http.StatusInternalServerError)
		return
	} // .if

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonResp)
}

type CosmosConfig struct {
	Endpoint string `env:"ENDPOINT"`
	Key      string `env:"KEY"`
	Database string `env:"DATABASE"`
}

type DynamoConfig struct {
	TablePrefix string `env:"TABLE_PREFIX"`
	Endpoint    string `env:"ENDPOINT"`
}

type PostgresConfig struct {
	URL string `env:"URL"`
}

type MongoConfig struct {
	URI      string `env:"URI"`
	Database string `env:"DATABASE"`
}

type CouchbaseConfig struct {
	ConnectionString string `env:"CONNECTION_STRING"`
	Username         string `env:"USERNAME"`
	Password         string `env:"PASSWORD"`
	Bucket           string `env:"BUCKET"`
	Scope            string `env:"SCOPE"`
}

type AzureQueueConfig struct {
	ConnectionString string `env:"CONNECTION_STRING"`
	Topic            string `env:"TOPIC"`
	Queue            string `env:"QUEUE"`
	Subscription     string `env:"SUBSCRIPTION"`
	MaxMessages      int    `env:"MAX_MESSAGES"`
}

type SQSConfig struct {
	QueueURL    string `env:"QUEUE_URL"`
	Endpoint    string `env:"ENDPOINT"`
	MaxMessages int    `env:"MAX_MESSAGES"`
}

type SNSConfig struct {
	TopicArn string `env:"TOPIC_ARN"`
	Endpoint string `env:"ENDPOINT"`
}

type RabbitMQConfig struct {
	URL      string `env:"URL"`
	Queue    string `env:"QUEUE"`
	Prefetch int    `env:"PREFETCH"`
}

type KafkaConfig struct {
	Brokers []string `env:"BROKERS"`
	Topic   string   `env:"TOPIC"`
	GroupID string   `env:"GROUP_ID"`
}

type S3StorageConfig struct {
	Endpoint   string `env:"ENDPOINT"`
	BucketName string `env:"BUCKET_NAME"`
	Folder     string `env:"FOLDER"`
}

type AzureStorageConfig struct {
	StorageName       string `env:"STORAGE_ACCOUNT"`
	StorageKey        string `env:"STORAGE_KEY"`
	ContainerEndpoint string `env:"ENDPOINT"`
	ContainerName     string `env:"CONTAINER"`
} // .AzureStorageConfig

func (azc *AzureStorageConfig) Check() error {
	errs := []error{}
	if azc.StorageName == "" {
		errs = append(errs, &MissingConfigError{ConfigName: "AZURE_SCHEMA_STORAGE_ACCOUNT"})
	}
	if azc.StorageKey == "" {
		errs = append(errs, &MissingConfigError{ConfigName: "AZURE_SCHEMA_STORAGE_KEY"})
	}
	return errors.Join(errs...)
}

func (q *AzureQueueConfig) Check(prefix string) error {
	errs := []error{}
	if q.ConnectionString == "" {
		errs = append(errs, &MissingConfigError{ConfigName: prefix + "CONNECTION_STRING"})
	}
	if q.Queue == "" && q.Topic == "" {
		errs = append(errs, &MissingConfigError{ConfigName: prefix + "QUEUE or " + prefix + "TOPIC"})
	}
	return errors.Join(errs...)
}

// Check reports every missing value a configured sub config needs.
func (conf *AppConfig) Check() error {
	errs := []error{}
	if conf.Workers < 1 {
		errs = append(errs, fmt.Errorf("WORKERS must be at least 1, got %d", conf.Workers))
	}
	if conf.CosmosConnection != nil && conf.CosmosConnection.Endpoint == "" {
		errs = append(errs, &MissingConfigError{ConfigName: "COSMOS_ENDPOINT"})
	}
	if conf.PostgresConnection != nil && conf.PostgresConnection.URL == "" {
		errs = append(errs, &MissingConfigError{ConfigName: "POSTGRES_URL"})
	}
	if conf.MongoConnection != nil && conf.MongoConnection.URI == "" {
		errs = append(errs, &MissingConfigError{ConfigName: "MONGO_URI"})
	}
	if conf.CouchbaseConnection != nil && conf.CouchbaseConnection.ConnectionString == "" {
		errs = append(errs, &MissingConfigError{ConfigName: "COUCHBASE_CONNECTION_STRING"})
	}
	if conf.SubscriberConnection != nil {
		if err := conf.SubscriberConnection.Check("SUBSCRIBER_"); err != nil {
			errs = append(errs, err)
		}
		if conf.SubscriberConnection.Queue == "" && conf.SubscriberConnection.Subscription == "" {
			errs = append(errs, &MissingConfigError{ConfigName: "SUBSCRIBER_SUBSCRIPTION"})
		}
	}
	if conf.PublisherConnection != nil {
		if err := conf.PublisherConnection.Check("PUBLISHER_"); err != nil {
			errs = append(errs, err)
		}
	}
	if conf.SQSSubscriberConnection != nil && conf.SQSSubscriberConnection.QueueURL == "" {
		errs = append(errs, &MissingConfigError{ConfigName: "SQS_SUBSCRIBER_QUEUE_URL"})
	}
	if conf.SNSPublisherConnection != nil && conf.SNSPublisherConnection.TopicArn == "" {
		errs = append(errs, &MissingConfigError{ConfigName: "SNS_PUBLISHER_TOPIC_ARN"})
	}
	if conf.RabbitMQConnection != nil {
		if conf.RabbitMQConnection.URL == "" {
			errs = append(errs, &MissingConfigError{ConfigName: "RABBITMQ_URL"})
		}
		if conf.RabbitMQConnection.Queue == "" {
			errs = append(errs, &MissingConfigError{ConfigName: "RABBITMQ_QUEUE"})
		}
	}
	if conf.KafkaConnection != nil {
		if len(conf.KafkaConnection.Brokers) == 0 {
			errs = append(errs, &MissingConfigError{ConfigName: "KAFKA_BROKERS"})
		}
		if conf.KafkaConnection.Topic == "" {
			errs = append(errs, &MissingConfigError{ConfigName: "KAFKA_TOPIC"})
		}
	}
	if conf.S3SchemaConnection != nil && conf.S3SchemaConnection.BucketName == "" {
		errs = append(errs, &MissingConfigError{ConfigName: "S3_SCHEMA_BUCKET_NAME"})
	}
	if conf.AzureSchemaConnection != nil {
		if err := conf.AzureSchemaConnection.Check(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const (
	DefaultDatabase        = "ProcessingStatus"
	DefaultCouchbaseScope  = "data"
	DefaultSchemaContainer = "schemas"
	DefaultPrefetch        = 16
	DefaultKafkaGroupID    = "report-sink"
)

var LoadedConfig = &AppConfig{}

func Handler() http.Handler {
	return LoadedConfig
}

// ParseConfig loads app configuration based on environment variables and returns AppConfig struct
func ParseConfig(ctx context.Context) (AppConfig, error) {
	return ParseConfigFrom(ctx, envconfig.OsLookuper())
}

// ParseConfigFrom is ParseConfig reading from l instead of the process environment.
func ParseConfigFrom(ctx context.Context, l envconfig.Lookuper) (AppConfig, error) {
	var ac AppConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &ac,
		Lookuper: l,
	}); err != nil {
		return AppConfig{}, err
	} // .if

	// sub configs are only created when one of their values is set, so their
	// defaults are filled in here
	if ac.AzureSchemaConnection != nil {
		if ac.AzureSchemaConnection.ContainerEndpoint == "" {
			ac.AzureSchemaConnection.ContainerEndpoint = fmt.Sprintf("https://%s.blob.core.windows.net", ac.AzureSchemaConnection.StorageName)
		}
		if ac.AzureSchemaConnection.ContainerName == "" {
			ac.AzureSchemaConnection.ContainerName = DefaultSchemaContainer
		}
	}
	if ac.CosmosConnection != nil && ac.CosmosConnection.Database == "" {
		ac.CosmosConnection.Database = DefaultDatabase
	}
	if ac.MongoConnection != nil && ac.MongoConnection.Database == "" {
		ac.MongoConnection.Database = DefaultDatabase
	}
	if ac.CouchbaseConnection != nil {
		if ac.CouchbaseConnection.Bucket == "" {
			ac.CouchbaseConnection.Bucket = DefaultDatabase
		}
		if ac.CouchbaseConnection.Scope == "" {
			ac.CouchbaseConnection.Scope = DefaultCouchbaseScope
		}
	}
	if ac.RabbitMQConnection != nil && ac.RabbitMQConnection.Prefetch == 0 {
		ac.RabbitMQConnection.Prefetch = DefaultPrefetch
	}
	if ac.KafkaConnection != nil && ac.KafkaConnection.GroupID == "" {
		ac.KafkaConnection.GroupID = DefaultKafkaGroupID
	}

	if err := ac.Check(); err != nil {
		return AppConfig{}, err
	}

	LoadedConfig = &ac
	return ac, nil
} // .ParseConfig
