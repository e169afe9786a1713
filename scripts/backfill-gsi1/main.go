// Backfill GSI1 (the session listing index) for existing SESSION# items in
// DynamoDB. Items written before the per-owner partition scheme carry a bare
// GSIPK of "SESSIONS" even when they have an owner; this rewrites them to
// "SESSIONS#{owner}" and fills in missing GSI1SK sort keys.
//
// Usage:
//
//	go run ./scripts/backfill-gsi1 --dry-run                # preview changes
//	go run ./scripts/backfill-gsi1                          # apply changes
//	go run ./scripts/backfill-gsi1 --table my-table         # custom table name
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func main() {
	tableName := flag.String("table", "apresai-pitches-prod", "DynamoDB table name")
	dryRun := flag.Bool("dry-run", false, "Preview changes without writing")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion("us-east-1"))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	client := dynamodb.NewFromConfig(cfg)

	fmt.Printf("Table: %s | Dry run: %v\n", *tableName, *dryRun)

	var lastKey map[string]types.AttributeValue
	var scanned, updated, skipped int

	for {
		input := &dynamodb.ScanInput{
			TableName:        tableName,
			FilterExpression: aws.String("begins_with(PK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: "SESSION#"},
			},
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := client.Scan(ctx, input)
		if err != nil {
			log.Fatalf("scan: %v", err)
		}

		for _, item := range result.Items {
			scanned++
			pk := attrStr(item, "PK")
			owner := attrStr(item, "owner")
			gsi1pk := attrStr(item, "GSI1PK")
			gsi1sk := attrStr(item, "GSI1SK")

			wantPK := "SESSIONS"
			if owner != "" {
				wantPK = "SESSIONS#" + owner
			}

			wantSK := gsi1sk
			if wantSK == "" {
				sessionID := strings.TrimPrefix(pk, "SESSION#")
				wantSK = attrStr(item, "updatedAt") + "#" + sessionID
			}

			if gsi1pk == wantPK && gsi1sk == wantSK {
				skipped++
				continue
			}

			if *dryRun {
				fmt.Printf("Would update %s: GSI1PK %q -> %q, GSI1SK %q -> %q\n", pk, gsi1pk, wantPK, gsi1sk, wantSK)
				updated++
				continue
			}

			_, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName: tableName,
				Key: map[string]types.AttributeValue{
					"PK": item["PK"],
					"SK": item["SK"],
				},
				UpdateExpression: aws.String("SET GSI1PK = :pk, GSI1SK = :sk"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":pk": &types.AttributeValueMemberS{Value: wantPK},
					":sk": &types.AttributeValueMemberS{Value: wantSK},
				},
			})
			if err != nil {
				log.Printf("update %s: %v", pk, err)
				continue
			}
			updated++
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		lastKey = result.LastEvaluatedKey
	}

	fmt.Printf("Scanned %d, updated %d, skipped %d\n", scanned, updated, skipped)
	if *dryRun && updated > 0 {
		fmt.Println("Rerun without --dry-run to apply")
		os.Exit(0)
	}
}

func attrStr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
