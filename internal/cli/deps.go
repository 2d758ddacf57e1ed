package cli

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/pulsepipe/pulsepipe/internal/bus"
	"github.com/pulsepipe/pulsepipe/internal/config"
	"github.com/pulsepipe/pulsepipe/internal/insight"
	"github.com/pulsepipe/pulsepipe/internal/ledger"
	"github.com/pulsepipe/pulsepipe/internal/metrics"
	"github.com/pulsepipe/pulsepipe/internal/pipeline"
	"github.com/pulsepipe/pulsepipe/internal/results"
	"github.com/pulsepipe/pulsepipe/internal/storage"
)

// deps bundles the external collaborators the stages run against.
type deps struct {
	store     storage.ObjectStore
	markers   ledger.Store
	results   results.Store
	bus       bus.Bus
	mailer    pipeline.Mailer
	insights  *insight.Client
	collector *metrics.Collector
}

// buildDeps constructs AWS-backed collaborators from the loaded config.
func buildDeps(ctx context.Context) (*deps, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	ddb := dynamodb.NewFromConfig(awsCfg)
	collector := metrics.NewCollector()

	model, err := buildModel(awsCfg, cfg)
	if err != nil {
		return nil, err
	}

	return &deps{
		store:   storage.NewS3Store(s3.NewFromConfig(awsCfg)),
		markers: ledger.NewDynamoStore(ddb, cfg.MarkerTable),
		results: results.NewDynamoStore(ddb, cfg.ResultsTable),
		bus:     bus.NewEventBridgeBus(eventbridge.NewFromConfig(awsCfg), cfg.EventBusName, logger),
		mailer:  pipeline.NewSESMailer(sesv2.NewFromConfig(awsCfg)),
		insights: insight.NewClient(model, insight.RetryConfig{
			Attempts:    cfg.InsightRetries,
			BaseBackoff: cfg.InsightBaseBackoff,
			Timeout:     cfg.InsightTimeout,
		}, cfg.MaxPromptAnomalies, collector, logger),
		collector: collector,
	}, nil
}

// buildModel selects the insight backend for the configured provider.
// Bedrock uses the shared AWS credentials; the langchaingo providers carry
// their own keys.
func buildModel(awsCfg aws.Config, c config.Config) (insight.Model, error) {
	if c.InsightProvider == config.ProviderBedrock {
		return insight.NewBedrockModel(bedrockruntime.NewFromConfig(awsCfg), c.InsightModelID, c.InsightMaxTokens), nil
	}
	model, err := insight.NewLangchainModel(c)
	if err != nil {
		return nil, fmt.Errorf("build insight model: %w", err)
	}
	return model, nil
}
