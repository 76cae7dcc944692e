package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	lastSelectedDeviceKey = "last_selected_device"

	// Device mappings live in the state table as one item per device.
	deviceStreamPrefix = "device_stream_"
)

func deviceStreamKey(deviceID string) string {
	return deviceStreamPrefix + deviceID
}

// Dynamo stores state and stations in two DynamoDB tables. The state
// table holds {key, value} items; the stations table one item per station.
type Dynamo struct {
	client        *dynamodb.Client
	stateTable    string
	stationsTable string
}

var _ Store = (*Dynamo)(nil)

// NewDynamo builds a client for the configured endpoint. Local
// single-node DynamoDB accepts any static credentials.
func NewDynamo(ctx context.Context, cfg DynamoConfig) (*Dynamo, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("castwatch", "castwatch", ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Dynamo{
		client:        client,
		stateTable:    cfg.StateTable,
		stationsTable: cfg.StationsTable,
	}, nil
}

func (d *Dynamo) Stations(ctx context.Context) ([]Station, error) {
	out, err := d.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.stationsTable),
	})
	if err != nil {
		return nil, fmt.Errorf("scan stations: %w", err)
	}

	var stations []Station
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &stations); err != nil {
		return nil, fmt.Errorf("unmarshal stations: %w", err)
	}

	sort.Slice(stations, func(i, j int) bool {
		return strings.ToLower(stations[i].Name) < strings.ToLower(stations[j].Name)
	})
	return stations, nil
}

func (d *Dynamo) Station(ctx context.Context, id string) (*Station, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.stationsTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get station %s: %w", id, err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var s Station
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, fmt.Errorf("unmarshal station %s: %w", id, err)
	}
	return &s, nil
}

func (d *Dynamo) PutStation(ctx context.Context, s Station) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal station %s: %w", s.ID, err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.stationsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put station %s: %w", s.ID, err)
	}
	return nil
}

func (d *Dynamo) DeleteStation(ctx context.Context, id string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.stationsTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("delete station %s: %w", id, err)
	}
	return nil
}

func (d *Dynamo) LastSelectedDevice(ctx context.Context) (string, error) {
	return d.getState(ctx, lastSelectedDeviceKey)
}

func (d *Dynamo) SetLastSelectedDevice(ctx context.Context, device string) error {
	return d.putState(ctx, lastSelectedDeviceKey, device)
}

func (d *Dynamo) DeviceStream(ctx context.Context, deviceID string) (string, error) {
	return d.getState(ctx, deviceStreamKey(deviceID))
}

func (d *Dynamo) SetDeviceStream(ctx context.Context, deviceID, streamURL string) error {
	return d.putState(ctx, deviceStreamKey(deviceID), streamURL)
}

func (d *Dynamo) ClearDeviceStream(ctx context.Context, deviceID string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.stateTable),
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: deviceStreamKey(deviceID)},
		},
	})
	if err != nil {
		return fmt.Errorf("clear device stream %s: %w", deviceID, err)
	}
	return nil
}

func (d *Dynamo) DeviceStreams(ctx context.Context) (map[string]string, error) {
	out, err := d.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(d.stateTable),
		FilterExpression: aws.String("begins_with(#k, :prefix)"),
		ExpressionAttributeNames: map[string]string{
			"#k": "key",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: deviceStreamPrefix},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scan device streams: %w", err)
	}

	mappings := make(map[string]string, len(out.Items))
	for _, item := range out.Items {
		var kv stateItem
		if err := attributevalue.UnmarshalMap(item, &kv); err != nil {
			return nil, fmt.Errorf("unmarshal state item: %w", err)
		}
		device := strings.TrimPrefix(kv.Key, deviceStreamPrefix)
		mappings[device] = kv.Value
	}
	return mappings, nil
}

type stateItem struct {
	Key   string `dynamodbav:"key"`
	Value string `dynamodbav:"value"`
}

func (d *Dynamo) getState(ctx context.Context, key string) (string, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.stateTable),
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	if out.Item == nil {
		return "", nil
	}

	var kv stateItem
	if err := attributevalue.UnmarshalMap(out.Item, &kv); err != nil {
		return "", fmt.Errorf("unmarshal state %s: %w", key, err)
	}
	return kv.Value, nil
}

func (d *Dynamo) putState(ctx context.Context, key, value string) error {
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.stateTable),
		Item: map[string]types.AttributeValue{
			"key":   &types.AttributeValueMemberS{Value: key},
			"value": &types.AttributeValueMemberS{Value: value},
		},
	})
	if err != nil {
		return fmt.Errorf("put state %s: %w", key, err)
	}
	return nil
}
