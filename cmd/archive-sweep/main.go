package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/apresai/pitchroom/internal/session"
	"github.com/apresai/pitchroom/internal/store"
)

// archive-sweep moves reported sessions older than the retention window out
// of DynamoDB and into the S3 archive. Run it from cron; it is safe to rerun.

func main() {
	retentionDays := flag.Int("retention-days", 30, "archive reported sessions not updated for this many days")
	dryRun := flag.Bool("dry-run", false, "print what would be archived without touching anything")
	flag.Parse()

	ctx := context.Background()

	tableName := os.Getenv("PITCH_TABLE")
	bucket := os.Getenv("PITCH_ARCHIVE_BUCKET")
	if tableName == "" || bucket == "" {
		log.Fatal("PITCH_TABLE and PITCH_ARCHIVE_BUCKET environment variables are required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	ddbClient := dynamodb.NewFromConfig(cfg)
	st := store.New(ddbClient, tableName)
	archive := store.NewArchive(s3.NewFromConfig(cfg), bucket, os.Getenv("CDN_BASE_URL"))

	cutoff := time.Now().UTC().AddDate(0, 0, -*retentionDays)
	log.Printf("Sweeping sessions not updated since %s", cutoff.Format(time.RFC3339))

	var scanned, archived, failed int
	var lastKey map[string]types.AttributeValue

	// Sessions are spread across per-owner GSI partitions, so a table scan is
	// the only way to see all of them.
	for {
		input := &dynamodb.ScanInput{
			TableName:        &tableName,
			FilterExpression: aws.String("begins_with(PK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: "SESSION#"},
			},
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := ddbClient.Scan(ctx, input)
		if err != nil {
			log.Fatalf("scan: %v", err)
		}

		for _, raw := range result.Items {
			scanned++

			var item store.SessionItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				log.Printf("unmarshal item: %v", err)
				failed++
				continue
			}
			if !sweepable(item, cutoff) {
				continue
			}

			if *dryRun {
				log.Printf("Would archive %s (%s, updated %s)", item.SessionID, item.Status, item.UpdatedAt)
				archived++
				continue
			}

			if err := sweep(ctx, st, archive, item); err != nil {
				log.Printf("sweep %s: %v", item.SessionID, err)
				failed++
				continue
			}
			archived++
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		lastKey = result.LastEvaluatedKey
	}

	log.Printf("Scanned %d sessions, archived %d, failed %d", scanned, archived, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// sweepable reports whether the session is finished, unpinned, and past the
// retention cutoff. Pinned sessions stay in the table regardless of age.
func sweepable(item store.SessionItem, cutoff time.Time) bool {
	if session.Status(item.Status) != session.StatusReported {
		return false
	}
	if item.Pinned {
		return false
	}
	updated, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		return false
	}
	return updated.Before(cutoff)
}

// sweep archives the session to S3 first and deletes the table item only
// after the write succeeded, so a crash never loses a session.
func sweep(ctx context.Context, st *store.Store, archive *store.Archive, item store.SessionItem) error {
	var snap session.Snapshot
	if err := json.Unmarshal([]byte(item.StateJSON), &snap); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	url, err := archive.ArchiveSession(ctx, snap)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	if err := st.Delete(ctx, item.SessionID); err != nil {
		return fmt.Errorf("delete (archived at %s): %w", url, err)
	}

	log.Printf("Archived %s -> %s", item.SessionID, url)
	return nil
}
