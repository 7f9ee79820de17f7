package cli

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/health"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage/cosmos"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage/couchbase"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage/dynamo"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage/file"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage/mongodb"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage/postgres"
)

// GetDataStore picks the report store from the configured connections. The
// local folder store is used when none is configured.
func GetDataStore(ctx context.Context, appConfig appconfig.AppConfig) (storage.Store, error) {
	reports, deadLetters := appConfig.ReportsContainer, appConfig.DeadLetterContainer

	if appConfig.CosmosConnection != nil {
		logger.Info("using cosmos db store", "endpoint", appConfig.CosmosConnection.Endpoint)
		client, err := cosmos.NewClient(*appConfig.CosmosConnection)
		if err != nil {
			return storage.Store{}, fmt.Errorf("cosmos client: %w", err)
		}
		store, err := cosmos.NewStore(client, appConfig.CosmosConnection.Database, reports, deadLetters)
		if err != nil {
			return storage.Store{}, err
		}
		registerStore(store)
		return store, nil
	} // .if

	if appConfig.DynamoConnection != nil {
		logger.Info("using dynamodb store", "tablePrefix", appConfig.DynamoConnection.TablePrefix)
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return storage.Store{}, err
		}
		client := dynamo.NewClient(cfg, appConfig.DynamoConnection.Endpoint)
		store := dynamo.NewStore(client, appConfig.DynamoConnection.TablePrefix, reports, deadLetters)
		registerStore(store)
		return store, nil
	}

	if appConfig.PostgresConnection != nil {
		logger.Info("using postgres store")
		pool, err := postgres.NewPool(ctx, appConfig.PostgresConnection.URL)
		if err != nil {
			return storage.Store{}, err
		}
		store, err := postgres.NewStore(ctx, pool, reports, deadLetters)
		if err != nil {
			pool.Close()
			return storage.Store{}, err
		}
		registerStore(store)
		return store, nil
	}

	if appConfig.MongoConnection != nil {
		logger.Info("using mongo store", "database", appConfig.MongoConnection.Database)
		client, err := mongodb.NewClient(ctx, appConfig.MongoConnection.URI)
		if err != nil {
			return storage.Store{}, err
		}
		store := mongodb.NewStore(client, appConfig.MongoConnection.Database, reports, deadLetters)
		registerStore(store)
		return store, nil
	}

	if appConfig.CouchbaseConnection != nil {
		conf := appConfig.CouchbaseConnection
		logger.Info("using couchbase store", "bucket", conf.Bucket, "scope", conf.Scope)
		cluster, err := couchbase.NewCluster(*conf)
		if err != nil {
			return storage.Store{}, err
		}
		store, err := couchbase.NewStore(cluster, conf.Bucket, conf.Scope, reports, deadLetters)
		if err != nil {
			cluster.Close(nil)
			return storage.Store{}, err
		}
		registerStore(store)
		return store, nil
	}

	logger.Info("using local folder store", "path", appConfig.LocalReportsFolder)
	store := file.NewStore(appConfig.LocalReportsFolder, reports, deadLetters)
	registerStore(store)
	return store, nil
} // .GetDataStore

func registerStore(store storage.Store) {
	for _, c := range []storage.Collection{store.Reports, store.DeadLetters} {
		if hc, ok := c.(health.Checkable); ok {
			health.Register(hc)
		}
	}
}
