package reader

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"storeprice/config"
	"storeprice/logger"
)

const defaultPollInterval = 30 * time.Second

// ObjectAPI is the subset of the S3 client the reader needs.
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client for the feed bucket. Static credentials are
// used when both keys are set, otherwise the default chain applies.
func NewS3Client(ctx context.Context, cfg config.S3FeedConfig) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	}), nil
}

// S3Reader polls a bucket prefix and appends every new row object to the sink.
type S3Reader struct {
	client   ObjectAPI
	bucket   string
	prefix   string
	interval time.Duration
	sink     Sink
	onBatch  BatchFunc
	seen     map[string]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

func NewS3Reader(cfg config.S3FeedConfig, client ObjectAPI, sink Sink) *S3Reader {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &S3Reader{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		interval: interval,
		sink:     sink,
		seen:     make(map[string]struct{}),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// OnBatch sets the per batch hook. Call before Start.
func (r *S3Reader) OnBatch(fn BatchFunc) { r.onBatch = fn }

func (r *S3Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("s3 reader already running")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.log.WithComponent("s3_reader").WithFields(logger.Fields{
		"bucket":   r.bucket,
		"prefix":   r.prefix,
		"interval": r.interval.String(),
	}).Info("starting s3 reader")

	r.wg.Add(1)
	go r.loop()
	return nil
}

func (r *S3Reader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	r.log.WithComponent("s3_reader").Info("s3 reader stopped")
}

func (r *S3Reader) loop() {
	defer r.wg.Done()

	r.poll()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.poll()
		}
	}
}

func (r *S3Reader) poll() {
	if _, err := r.Poll(r.ctx); err != nil && r.ctx.Err() == nil {
		r.log.WithComponent("s3_reader").WithError(err).Warn("s3 poll failed")
	}
}

// Poll lists the prefix once and delivers every object not seen before. It
// returns the number of objects delivered.
func (r *S3Reader) Poll(ctx context.Context) (int, error) {
	start := time.Now()
	log := r.log.WithComponent("s3_reader")

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(r.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("list s3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if _, done := r.seen[key]; done || !Supported(key) {
				continue
			}
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	delivered := 0
	for _, key := range keys {
		data, err := r.fetch(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return delivered, ctx.Err()
			}
			log.WithError(err).WithFields(logger.Fields{"key": key}).Warn("s3 object fetch failed, will retry")
			continue
		}
		r.seen[key] = struct{}{}

		rows, err := DecodeRows(key, data)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"key": key}).Warn("skipping row object")
			continue
		}
		deliver(r.log, r.sink, "s3_reader", key, rows, r.onBatch)
		delivered++
	}

	if delivered > 0 {
		logger.LogPerformanceEntry(log, "s3_reader", "poll", time.Since(start), logger.Fields{
			"objects": delivered,
		})
	}
	return delivered, nil
}

func (r *S3Reader) fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
