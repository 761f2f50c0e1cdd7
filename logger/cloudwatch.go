package logger

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// metricsAPI is the part of the CloudWatch client the logger uses.
type metricsAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
	PutDashboard(ctx context.Context, in *cloudwatch.PutDashboardInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.PutDashboardOutput, error)
}

type cwPublisher struct {
	client    metricsAPI
	namespace string
	dashboard string
}

// PutMetricData accepts at most this many datums per call.
const maxDatumsPerCall = 1000

var publisher atomic.Pointer[cwPublisher]

// InitCloudWatch enables metric publishing. An empty region falls back to
// AWS_REGION. Failures leave publishing disabled and are only logged.
func InitCloudWatch(region, namespace, dashboard string) {
	log := GetLogger().WithComponent("cloudwatch")

	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	setPublisher(cloudwatch.NewFromConfig(cfg), namespace, dashboard)
	log.WithFields(Fields{"region": region, "namespace": publisher.Load().namespace}).Info("initialized CloudWatch client")
}

func setPublisher(client metricsAPI, namespace, dashboard string) {
	if namespace == "" {
		namespace = reportPrefix
	}
	if dashboard == "" {
		dashboard = reportPrefix
	}
	publisher.Store(&cwPublisher{client: client, namespace: namespace, dashboard: dashboard})
}

// CloudWatchEnabled reports whether metrics are being published.
func CloudWatchEnabled() bool {
	return publisher.Load() != nil
}

// PublishMetric sends one numeric datum with a component dimension plus one
// dimension per non-empty string field. The "unit" field selects the unit,
// Count by default. Non-numeric values are ignored.
func PublishMetric(ctx context.Context, component, metric string, value interface{}, fields Fields) {
	val, ok := toFloat64(value)
	if !ok {
		return
	}

	unit := cwtypes.StandardUnitCount
	if raw, ok := fields["unit"].(string); ok {
		unit = metricUnitFromString(raw)
	}

	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok && s != "" && k != "unit" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(component)}}
	for _, k := range keys {
		dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(fields[k].(string))})
	}

	publishMetrics(ctx, []cwtypes.MetricDatum{{
		MetricName: aws.String(metric),
		Dimensions: dims,
		Unit:       unit,
		Value:      aws.Float64(val),
	}})
}

// publishMetrics sends data in chunks the API accepts. It is a no-op until
// InitCloudWatch succeeded.
func publishMetrics(ctx context.Context, data []cwtypes.MetricDatum) {
	p := publisher.Load()
	if p == nil || len(data) == 0 {
		return
	}
	log := GetLogger().WithComponent("cloudwatch")

	for start := 0; start < len(data); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(data))
		chunk := data[start:end]
		if _, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: chunk,
		}); err != nil {
			log.WithError(err).Warn("failed to publish CloudWatch metrics")
			return
		}
	}
	log.WithFields(Fields{"datums": len(data)}).Debug("published metrics to CloudWatch")
}

type dashboardWidget struct {
	Type       string           `json:"type"`
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	Properties widgetProperties `json:"properties"`
}

type widgetProperties struct {
	Metrics [][]string `json:"metrics"`
	Period  int        `json:"period"`
	Stat    string     `json:"stat"`
	Title   string     `json:"title"`
}

func dashboardBody(namespace string) ([]byte, error) {
	series := func(names ...string) [][]string {
		out := make([][]string, len(names))
		for i, n := range names {
			out[i] = []string{namespace, reportPrefix + "-" + n}
		}
		return out
	}
	return json.Marshal(map[string][]dashboardWidget{"widgets": {
		{Type: "metric", Width: 12, Height: 6, Properties: widgetProperties{
			Metrics: series("CPUPercent", "MemoryMB"), Period: 60, Stat: "Average", Title: "StorePrice process",
		}},
		{Type: "metric", Width: 12, Height: 6, Properties: widgetProperties{
			Metrics: series("FeedRows", "CatalogItems", "Errors", "Warns"), Period: 60, Stat: "Maximum", Title: "StorePrice catalog",
		}},
	}})
}

// CreateDefaultDashboard puts the process and catalog dashboard. Failures
// are logged only.
func CreateDefaultDashboard(ctx context.Context) {
	p := publisher.Load()
	if p == nil {
		return
	}
	log := GetLogger().WithComponent("cloudwatch")

	body, err := dashboardBody(p.namespace)
	if err != nil {
		log.WithError(err).Warn("failed to render CloudWatch dashboard")
		return
	}
	if _, err := p.client.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(p.dashboard),
		DashboardBody: aws.String(string(body)),
	}); err != nil {
		log.WithError(err).Warn("failed to create CloudWatch dashboard")
	}
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func metricUnitFromString(unit string) cwtypes.StandardUnit {
	switch strings.ToLower(unit) {
	case "percent":
		return cwtypes.StandardUnitPercent
	case "milliseconds", "ms":
		return cwtypes.StandardUnitMilliseconds
	case "bytes":
		return cwtypes.StandardUnitBytes
	case "seconds":
		return cwtypes.StandardUnitSeconds
	}
	return cwtypes.StandardUnitCount
}
