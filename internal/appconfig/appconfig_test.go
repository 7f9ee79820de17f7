package appconfig

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestParseConfigDefaults(t *testing.T) {
	ac, err := ParseConfigFrom(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatal(err)
	}
	if ac.Workers != 8 || ac.MaxDeliveryCount != 10 || ac.MaxReplaceMatches != 50 || ac.RetryMaxAttempts != 100 {
		t.Fatalf("unexpected pipeline defaults %+v", ac)
	}
	if ac.MessageTimeout != 2*time.Minute || ac.RetryInterval != 500*time.Millisecond {
		t.Fatalf("unexpected duration defaults %v %v", ac.MessageTimeout, ac.RetryInterval)
	}
	if ac.MaxMessageBytes != 1<<20 {
		t.Fatalf("unexpected max message bytes %d", ac.MaxMessageBytes)
	}
	if ac.CosmosConnection != nil || ac.KafkaConnection != nil || ac.SubscriberConnection != nil {
		t.Fatal("unset sub configs should stay nil")
	}
}

func TestParseConfigSubConfigs(t *testing.T) {
	ac, err := ParseConfigFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"DISABLE_VALIDATION":           "true",
		"KAFKA_BROKERS":                "k1:9092,k2:9092",
		"KAFKA_TOPIC":                  "reports",
		"AZURE_SCHEMA_STORAGE_ACCOUNT": "acct",
		"AZURE_SCHEMA_STORAGE_KEY":     "key",
		"COUCHBASE_CONNECTION_STRING":  "couchbase://localhost",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !ac.DisableValidation {
		t.Fatal("expected validation to be disabled")
	}
	if ac.KafkaConnection == nil || len(ac.KafkaConnection.Brokers) != 2 || ac.KafkaConnection.GroupID != "report-sink" {
		t.Fatalf("unexpected kafka config %+v", ac.KafkaConnection)
	}
	if ac.CouchbaseConnection == nil || ac.CouchbaseConnection.Bucket != "ProcessingStatus" || ac.CouchbaseConnection.Scope != "data" {
		t.Fatalf("unexpected couchbase config %+v", ac.CouchbaseConnection)
	}
	if ac.AzureSchemaConnection.ContainerEndpoint != "https://acct.blob.core.windows.net" {
		t.Fatalf("unexpected endpoint %s", ac.AzureSchemaConnection.ContainerEndpoint)
	}
}

func TestParseConfigMissingValues(t *testing.T) {
	_, err := ParseConfigFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"SUBSCRIBER_TOPIC": "reports",
		"RABBITMQ_QUEUE":   "reports",
		"COUCHBASE_BUCKET": "ProcessingStatus",
	}))
	var missing *MissingConfigError
	if !errors.As(err, &missing) {
		t.Fatalf("expected a MissingConfigError, got %v", err)
	}
	for _, name := range []string{"SUBSCRIBER_CONNECTION_STRING", "SUBSCRIBER_SUBSCRIPTION", "RABBITMQ_URL", "COUCHBASE_CONNECTION_STRING"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("expected %s in %q", name, err.Error())
		}
	}
}
