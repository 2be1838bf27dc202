package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/cloudbox/cloudbox/internal/logger"
	"github.com/cloudbox/cloudbox/pkg/blob"
	"github.com/cloudbox/cloudbox/pkg/drive"
	badgerStore "github.com/cloudbox/cloudbox/pkg/drive/badger"
	"github.com/cloudbox/cloudbox/pkg/drive/memory"
)

// CreateStore creates a drive.Store based on configuration.
//
// The Type field selects the implementation; the matching option map is
// decoded into the implementation's own config struct and handed to its
// constructor. The blob configuration only applies to the badger store,
// which can keep version payloads outside the database.
//
// Supported types:
//   - "memory": in-memory store, state lost on restart
//   - "badger": persistent store backed by BadgerDB
func CreateStore(ctx context.Context, storeCfg *StoreConfig, blobCfg *BlobConfig) (drive.Store, error) {
	switch storeCfg.Type {
	case "memory":
		return memory.NewStore(), nil
	case "badger":
		blobs, err := CreateBlobStore(ctx, blobCfg)
		if err != nil {
			return nil, err
		}
		return createBadgerStore(storeCfg.Badger, blobs)
	default:
		return nil, fmt.Errorf("unknown store type: %q", storeCfg.Type)
	}
}

// createBadgerStore decodes badger options and opens the database.
func createBadgerStore(options map[string]any, blobs blob.Store) (drive.Store, error) {
	type BadgerStoreConfig struct {
		Path       string `mapstructure:"path"`
		InMemory   bool   `mapstructure:"in_memory"`
		SyncWrites bool   `mapstructure:"sync_writes"`
	}

	var storeCfg BadgerStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger store config: %w", err)
	}

	if storeCfg.Path == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger store: path is required")
	}

	store, err := badgerStore.NewStore(badgerStore.Config{
		DBPath:     storeCfg.Path,
		InMemory:   storeCfg.InMemory,
		SyncWrites: storeCfg.SyncWrites,
		Blobs:      blobs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return store, nil
}

// CreateBlobStore creates a version-payload store based on configuration.
//
// Returns nil for the "inline" type: the badger store then keeps
// payloads inside its own database, which is the zero-setup default.
func CreateBlobStore(ctx context.Context, cfg *BlobConfig) (blob.Store, error) {
	switch cfg.Type {
	case "", "inline":
		return nil, nil
	case "memory":
		return blob.NewMemoryStore(), nil
	case "fs":
		return createFSBlobStore(ctx, cfg.FS)
	case "s3":
		return createS3BlobStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob store type: %q", cfg.Type)
	}
}

// createFSBlobStore decodes fs options and prepares the directory.
func createFSBlobStore(ctx context.Context, options map[string]any) (blob.Store, error) {
	type FSBlobConfig struct {
		Path string `mapstructure:"path"`
	}

	var blobCfg FSBlobConfig
	if err := mapstructure.Decode(options, &blobCfg); err != nil {
		return nil, fmt.Errorf("failed to decode fs blob config: %w", err)
	}
	if blobCfg.Path == "" {
		return nil, fmt.Errorf("fs blob store: path is required")
	}
	return blob.NewFSStore(ctx, blobCfg.Path)
}

// createS3BlobStore builds the AWS client and opens the bucket-backed
// store. A custom endpoint switches on path-style addressing for
// S3-compatible services like MinIO and Localstack.
func createS3BlobStore(ctx context.Context, options map[string]any) (blob.Store, error) {
	type S3BlobConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var blobCfg S3BlobConfig
	if err := mapstructure.Decode(options, &blobCfg); err != nil {
		return nil, fmt.Errorf("failed to decode s3 blob config: %w", err)
	}
	if blobCfg.Bucket == "" {
		return nil, fmt.Errorf("s3 blob store: bucket is required")
	}
	if blobCfg.Region == "" {
		return nil, fmt.Errorf("s3 blob store: region is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	configOptions = append(configOptions, awsConfig.WithRegion(blobCfg.Region))

	if blobCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               blobCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	if blobCfg.AccessKeyID != "" && blobCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			blobCfg.AccessKeyID,
			blobCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := blobCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if blobCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	store, err := blob.NewS3Store(ctx, blob.S3Config{
		Client:    client,
		Bucket:    blobCfg.Bucket,
		KeyPrefix: blobCfg.KeyPrefix,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("s3 blob store initialized: bucket=%s, region=%s, prefix=%s",
		blobCfg.Bucket, blobCfg.Region, blobCfg.KeyPrefix)

	return store, nil
}
