// One-shot local pipeline runner: processes a raw export file on disk
// through all three stages using a filesystem artifact store. Useful for
// development and ad-hoc batches without Postgres, redis, or MinIO.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/trackops/slapipe/internal/holiday"
	"github.com/trackops/slapipe/internal/objstore"
	"github.com/trackops/slapipe/internal/pipeline"
)

func main() {
	input := flag.String("input", "resources/jira_issues_raw.json", "path to the raw issue export JSON")
	dataDir := flag.String("data", "data", "directory for generated artifacts")
	holidayAPI := flag.String("holiday-api", "", "holiday API base URL (empty uses the built-in Brazilian calendar)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	ctx := log.Logger.WithContext(context.Background())

	raw, err := os.Open(*input)
	if err != nil {
		log.Fatal().Err(err).Str("path", *input).Msg("open input")
	}
	defer raw.Close()
	fi, err := raw.Stat()
	if err != nil {
		log.Fatal().Err(err).Msg("stat input")
	}

	store := &objstore.FS{Base: *dataDir}
	const inputKey = "raw/jira_issues_raw.json"
	if _, err := store.PutObject(ctx, "", inputKey, raw, fi.Size(), minio.PutObjectOptions{ContentType: "application/json"}); err != nil {
		log.Fatal().Err(err).Msg("stage input")
	}

	var provider holiday.Provider = holiday.StaticProvider{}
	if *holidayAPI != "" {
		provider = &holiday.HTTPProvider{BaseURL: *holidayAPI}
	}

	p := &pipeline.Pipeline{Store: store, Bucket: "", Holidays: provider}
	res, err := p.Run(ctx, inputKey, "")
	if err != nil {
		log.Fatal().Err(err).Msg("pipeline")
	}

	fmt.Println("Pipeline finished successfully")
	fmt.Printf("Issues ingested: %d, evaluated: %d\n", res.Ingested, len(res.Gold.Rows))
	fmt.Println("Generated outputs:")
	names := make([]string, 0, len(res.Artifacts))
	for name := range res.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("- %s: %s\n", name, res.Artifacts[name])
	}
}
