package ddbkv

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/sakuhiki-go/sakuhiki/backend"
)

// Factory opens a ddbkv.Backend against an already-provisioned
// DynamoDB table (Options.TableName, keyed on a String partition key
// "cf" and a Binary sort key "k"). Unlike badgerkv, ddbkv never creates
// or drops the table itself — provisioning a DynamoDB table is an
// infrastructure concern (capacity mode, billing, replication) outside
// a KV backend's remit, so CfConfig's Options/Kind fields are unused
// here: every CF is just a distinct partition-key value in one
// pre-existing table, nothing to create per CF.
type Factory struct {
	Options Options
}

// NewFactory builds a Factory over opts.
func NewFactory(opts Options) *Factory { return &Factory{Options: opts} }

// ExistingCfs scans the table's distinct partition-key values via a
// table Scan with a projection on the CF attribute — DynamoDB has no
// cheaper "list distinct partition keys" primitive, so this pays for a
// full table scan. Acceptable for Builder's one-time reconciliation at
// startup, not something called on any hot path.
func (f *Factory) ExistingCfs(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var names []string
	var lastKey map[string]types.AttributeValue
	for {
		out, err := f.Options.Client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(f.Options.TableName),
			ProjectionExpression: aws.String("#pk"),
			ExpressionAttributeNames: map[string]string{
				"#pk": attrPK,
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, fmt.Errorf("ddbkv: list existing cfs: %w", err)
		}
		for _, item := range out.Items {
			pk, ok := item[attrPK].(*types.AttributeValueMemberS)
			if !ok || pk.Value == lockPK {
				continue
			}
			if !seen[pk.Value] {
				seen[pk.Value] = true
				names = append(names, pk.Value)
			}
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		lastKey = out.LastEvaluatedKey
	}
	return names, nil
}

func (f *Factory) Open(ctx context.Context, cfs []backend.CfConfig, dropUnknownCfs bool) (backend.Backend, map[string]bool, error) {
	existing, err := f.ExistingCfs(ctx)
	if err != nil {
		return nil, nil, err
	}
	existingSet := make(map[string]bool, len(existing))
	for _, name := range existing {
		existingSet[name] = true
	}

	created := make(map[string]bool, len(cfs))
	wanted := make(map[string]bool, len(cfs))
	for _, cfg := range cfs {
		wanted[cfg.Name] = true
		if !existingSet[cfg.Name] {
			created[cfg.Name] = true
		}
	}

	b := &Backend{client: f.Options.Client, table: f.Options.TableName}

	if dropUnknownCfs {
		for _, name := range existing {
			if wanted[name] {
				continue
			}
			if err := dropCfPartition(ctx, f.Options.Client, f.Options.TableName, name); err != nil {
				return nil, nil, fmt.Errorf("ddbkv: drop unknown cf %q: %w", name, err)
			}
		}
	}

	return b, created, nil
}

func dropCfPartition(ctx context.Context, client *dynamodb.Client, table, name string) error {
	var lastKey map[string]types.AttributeValue
	for {
		out, err := client.Query(ctx, &dynamodb.QueryInput{
			TableName:                aws.String(table),
			KeyConditionExpression:   aws.String("#pk = :pk"),
			ExpressionAttributeNames: map[string]string{"#pk": attrPK, "#sk": attrSK},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: name},
			},
			ProjectionExpression: aws.String("#sk"),
			ExclusiveStartKey:    lastKey,
		})
		if err != nil {
			return err
		}
		for _, item := range out.Items {
			sk, ok := item[attrSK].(*types.AttributeValueMemberB)
			if !ok {
				continue
			}
			_, err := client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(table),
				Key: map[string]types.AttributeValue{
					attrPK: &types.AttributeValueMemberS{Value: name},
					attrSK: &types.AttributeValueMemberB{Value: sk.Value},
				},
			})
			if err != nil {
				return err
			}
		}
		if out.LastEvaluatedKey == nil {
			return nil
		}
		lastKey = out.LastEvaluatedKey
	}
}
