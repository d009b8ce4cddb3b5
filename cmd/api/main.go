package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apppkg "github.com/trackops/slapipe/cmd/api/app"
	"github.com/trackops/slapipe/cmd/api/exports"
	"github.com/trackops/slapipe/cmd/api/runs"
	"github.com/trackops/slapipe/internal/objstore"
)

func main() {
	cfg := apppkg.GetConfig()
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("redis ping failed (queue not active yet)")
	}
	defer rdb.Close()

	a := apppkg.NewApp(cfg, pool, rdb)
	if cfg.MinIOEndpoint != "" {
		mc, err := minio.New(cfg.MinIOEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIOAccess, cfg.MinIOSecret, ""),
			Secure: cfg.MinIOUseSSL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("minio init")
		}
		a.Presign = &objstore.Presigner{Client: mc, Bucket: cfg.MinIOBucket, MaxTTL: time.Hour}
	}

	a.R.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	a.R.GET("/metrics", gin.WrapH(promhttp.Handler()))
	a.R.POST("/runs", a.Limit.PerIP(), runs.Create(a))
	a.R.GET("/runs/:id", runs.Get(a))
	a.R.GET("/runs/:id/artifacts/:name", runs.Artifact(a))
	a.R.POST("/exports/presign", exports.Presign(a))

	log.Info().Str("addr", cfg.Addr).Msg("api started")
	if err := a.R.Run(cfg.Addr); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}
