package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: runctl run <object_key> | status <run_id>")
		return
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	switch os.Args[1] {
	case "run":
		if len(os.Args) < 3 {
			fmt.Println("object key required")
			return
		}
		runID := uuid.New().String()
		data, _ := json.Marshal(struct {
			RunID     string `json:"run_id"`
			ObjectKey string `json:"object_key"`
		}{runID, os.Args[2]})
		jb, _ := json.Marshal(struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}{"run_pipeline", data})
		if err := rdb.LPush(ctx, "jobs", jb).Err(); err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println(runID)
	case "status":
		if len(os.Args) < 3 {
			fmt.Println("run id required")
			return
		}
		val, err := rdb.Get(ctx, "run_status:"+os.Args[2]).Result()
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println(val)
	default:
		fmt.Println("unknown command")
	}
}
