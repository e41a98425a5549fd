package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"interaction-export/handler"
	"interaction-export/internal/domain"
	"interaction-export/internal/integrations/objectstore"
	"interaction-export/internal/integrations/paramstore"
	"interaction-export/internal/repository"
	"interaction-export/internal/usecase"
	"interaction-export/internal/watermark"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	// ---- Configuration (read only here, before any network activity) ----
	var missing []string
	env := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	tableName := env("RECORDS_TABLE")
	bucket := env("EXPORT_BUCKET")
	paramPrefix := env("PARAM_PREFIX")
	if len(missing) > 0 {
		slog.Error("required environment variables are not set", "keys", missing)
		return usecase.ExitConfig
	}

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		return usecase.ExitUnexpected
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		return usecase.ExitUnexpected
	}
	settings, err := ssmClient.LoadSettings(ctx, paramPrefix)
	if err != nil {
		err = usecase.Classify(usecase.ErrorSettings, "settings_load_error", err)
		slog.Error("failed to load export settings", "err", err)
		return usecase.ExitCode(err)
	}

	recordsClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), tableName)
	if err != nil {
		slog.Error("failed to create records client", "err", err)
		return usecase.ExitUnexpected
	}
	blobClient, err := objectstore.New(awss3.NewFromConfig(cfg), bucket)
	if err != nil {
		slog.Error("failed to create object store client", "err", err)
		return usecase.ExitUnexpected
	}
	marks, err := watermark.New(blobClient, settings.StateKey)
	if err != nil {
		slog.Error("failed to create watermark store", "err", err)
		return usecase.ExitUnexpected
	}

	exporter, err := usecase.NewExportService(
		recordStore{client: recordsClient},
		blobClient,
		marks,
		settings.OutputPrefix,
		settings.OutputSuffix,
	)
	if err != nil {
		slog.Error("failed to create export service", "err", err)
		return usecase.ExitCode(err)
	}

	// Deployed as a Lambda the schedule drives invocations; anywhere else
	// the process runs one export pass and exits with a code per outcome.
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		h, err := handler.NewHandler(exporter)
		if err != nil {
			slog.Error("failed to create handler", "err", err)
			return usecase.ExitUnexpected
		}
		lambda.Start(h.Handle)
		return usecase.ExitOK
	}

	summary, err := exporter.Run(ctx)
	if err != nil {
		slog.Error("export run failed", "err", err)
		return usecase.ExitCode(err)
	}
	slog.Info("export run succeeded",
		"runId", summary.RunID,
		"daysExported", summary.DaysExported,
		"watermark", summary.Watermark,
		"todayRecords", summary.TodayRecords)
	return usecase.ExitOK
}

// recordStore adapts the repository client to the usecase page interface.
type recordStore struct {
	client *repository.Client
}

func (r recordStore) QueryWindow(window domain.DayWindow) usecase.RecordPages {
	return r.client.QueryWindow(window)
}

func (r recordStore) MinCreatedAt(ctx context.Context) (time.Time, bool, error) {
	return r.client.MinCreatedAt(ctx)
}
