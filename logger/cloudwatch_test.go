package logger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type fakeMetrics struct {
	puts       []*cloudwatch.PutMetricDataInput
	dashboards []*cloudwatch.PutDashboardInput
}

func (f *fakeMetrics) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.puts = append(f.puts, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func (f *fakeMetrics) PutDashboard(_ context.Context, in *cloudwatch.PutDashboardInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutDashboardOutput, error) {
	f.dashboards = append(f.dashboards, in)
	return &cloudwatch.PutDashboardOutput{}, nil
}

func withFakePublisher(t *testing.T) *fakeMetrics {
	t.Helper()
	prev := publisher.Load()
	t.Cleanup(func() { publisher.Store(prev) })
	fake := &fakeMetrics{}
	setPublisher(fake, "Test", "")
	return fake
}

func TestPublishMetricDimensions(t *testing.T) {
	fake := withFakePublisher(t)

	PublishMetric(context.Background(), "feed", "rows_admitted", 12.0, Fields{"source": "s3_reader", "unit": "count", "batch": 3})
	PublishMetric(context.Background(), "feed", "ignored", "not a number", nil)

	if len(fake.puts) != 1 {
		t.Fatalf("expected 1 put, got %d", len(fake.puts))
	}
	in := fake.puts[0]
	if *in.Namespace != "Test" || len(in.MetricData) != 1 {
		t.Fatalf("unexpected input: %+v", in)
	}
	d := in.MetricData[0]
	if *d.MetricName != "rows_admitted" || *d.Value != 12 || d.Unit != cwtypes.StandardUnitCount {
		t.Fatalf("unexpected datum: %+v", d)
	}
	if len(d.Dimensions) != 2 || *d.Dimensions[0].Name != "component" || *d.Dimensions[1].Name != "source" {
		t.Fatalf("unexpected dimensions: %+v", d.Dimensions)
	}
}

func TestPublishMetricsChunks(t *testing.T) {
	fake := withFakePublisher(t)

	data := make([]cwtypes.MetricDatum, maxDatumsPerCall+5)
	publishMetrics(context.Background(), data)

	if len(fake.puts) != 2 || len(fake.puts[1].MetricData) != 5 {
		t.Fatalf("expected 2 chunks, got %d", len(fake.puts))
	}
}

func TestCreateDefaultDashboard(t *testing.T) {
	fake := withFakePublisher(t)

	CreateDefaultDashboard(context.Background())

	if len(fake.dashboards) != 1 || *fake.dashboards[0].DashboardName != reportPrefix {
		t.Fatalf("unexpected dashboards: %+v", fake.dashboards)
	}
	var body struct {
		Widgets []dashboardWidget `json:"widgets"`
	}
	if err := json.Unmarshal([]byte(*fake.dashboards[0].DashboardBody), &body); err != nil {
		t.Fatalf("dashboard body is not JSON: %v", err)
	}
	if len(body.Widgets) != 2 || body.Widgets[0].Properties.Metrics[0][0] != "Test" {
		t.Fatalf("unexpected widgets: %+v", body.Widgets)
	}
}
