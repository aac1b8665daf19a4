package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store keeps each document as an object <prefix><name>.json in a
// bucket. It offers the same load/save/update contract as FileStore so
// the ledgers stay unchanged when the backend is swapped. Serialization
// relies on per-name in-process mutexes: the deployment model is a
// single node, so no cross-process lock is needed here.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string

	mu    sync.Mutex
	names map[string]*sync.Mutex
}

// S3Options configures the S3-backed document store. AccessKey and
// SecretKey are optional; when empty the default credential chain is
// used. Endpoint switches the client to a custom S3-compatible service.
type S3Options struct {
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// NewS3Store creates an S3-backed document store.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 store requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client: client,
		bucket: opts.Bucket,
		prefix: opts.Prefix,
		names:  make(map[string]*sync.Mutex),
	}, nil
}

// Load implements Store.
func (s *S3Store) Load(ctx context.Context, name string, out any) error {
	m := s.named(name)
	m.Lock()
	defer m.Unlock()

	data, err := s.read(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse document %q: %w", name, err)
	}
	return nil
}

// Save implements Store.
func (s *S3Store) Save(ctx context.Context, name string, doc any) error {
	m := s.named(name)
	m.Lock()
	defer m.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document %q: %w", name, err)
	}
	return s.write(ctx, name, data)
}

// Update implements Store.
func (s *S3Store) Update(ctx context.Context, name string, fn UpdateFunc) error {
	m := s.named(name)
	m.Lock()
	defer m.Unlock()

	data, err := s.read(ctx, name)
	if err != nil {
		return err
	}
	next, err := fn(data)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	return s.write(ctx, name, next)
}

func (s *S3Store) key(name string) string {
	return s.prefix + name + ".json"
}

func (s *S3Store) read(ctx context.Context, name string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return emptyDocument, nil
		}
		return nil, fmt.Errorf("failed to read document %q: %w", name, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %q: %w", name, err)
	}
	if len(data) == 0 {
		return emptyDocument, nil
	}
	return data, nil
}

func (s *S3Store) write(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to write document %q: %w", name, err)
	}
	return nil
}

func (s *S3Store) named(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.names[name]
	if !ok {
		m = &sync.Mutex{}
		s.names[name] = m
	}
	return m
}
