package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/guregu/null/v6"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gapwatch/internal/contracts"
	"github.com/wonny/gapwatch/internal/observability"
	"github.com/wonny/gapwatch/pkg/config"
	"github.com/wonny/gapwatch/pkg/logger"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func result(n int) *contracts.CheckpointResult {
	r := &contracts.CheckpointResult{
		Date:         "20250314",
		Label:        "08:50",
		TotalCount:   100,
		FetchedCount: 100,
	}
	for i := 0; i < n; i++ {
		r.Qualified = append(r.Qualified, contracts.QualifiedSymbol{
			Symbol:            fmt.Sprintf("S%02d", i),
			CurrentPrice:      10.3,
			PctChange:         3.0,
			Volume:            512_000,
			MarketCapMillions: null.FloatFrom(float64(1000 - i)),
		})
	}
	r.QualifiedCount = n
	return r
}

func TestFormatSummary(t *testing.T) {
	msg := FormatSummary(result(12))
	assert.Equal(t, "Qualified: 12 stocks at 08:50", msg.Subject)
	assert.Contains(t, msg.Body, "Qualified: 12 of 100")
	assert.Contains(t, msg.Body, "S00: +3.0% ($10.30), Vol: 512,000, MCap: $1.0B")
	assert.Contains(t, msg.Body, "S09:")
	assert.NotContains(t, msg.Body, "S10:")
	assert.Contains(t, msg.Body, "(+2 more)")

	empty := FormatSummary(result(0))
	assert.Equal(t, "No qualified stocks at 08:50", empty.Subject)
	assert.NotContains(t, empty.Body, "Failed fetches")
}

func TestFormatSummary_Outage(t *testing.T) {
	r := result(0)
	r.FailedCount = 100
	msg := FormatSummary(r)
	assert.Contains(t, msg.Body, "Failed fetches: 100 of 100")
	assert.Contains(t, msg.Body, "WARNING")
}

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"small volume", FormatVolume(512_000), "512,000"},
		{"tiny volume", FormatVolume(950), "950"},
		{"million volume", FormatVolume(1_250_000), "1.3M"},
		{"mcap millions", FormatMarketCap(20.6), "$21M"},
		{"mcap billions", FormatMarketCap(1500), "$1.5B"},
		{"negative change", FormatLine(contracts.QualifiedSymbol{Symbol: "X", CurrentPrice: 1, PctChange: -1.24, Volume: 10}), "X: -1.2% ($1.00), Vol: 10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestSNSNotifier(t *testing.T) {
	client := &fakeSNS{}
	n := NewSNSNotifier(client, "arn:aws:sns:us-east-1:123:gapwatch", logger.Nop())

	require.NoError(t, n.Notify(context.Background(), result(1)))
	require.Len(t, client.inputs, 1)
	assert.Equal(t, "arn:aws:sns:us-east-1:123:gapwatch", aws.ToString(client.inputs[0].TopicArn))
	assert.Equal(t, "Qualified: 1 stocks at 08:50", aws.ToString(client.inputs[0].Subject))

	require.NoError(t, n.NotifyFailure(context.Background(), "20250314", "09:00", errors.New("storage down")))
	assert.Equal(t, "Checkpoint 09:00 failed", aws.ToString(client.inputs[1].Subject))
	assert.Contains(t, aws.ToString(client.inputs[1].Message), "storage down")

	client.err = errors.New("throttled")
	assert.Error(t, n.Notify(context.Background(), result(0)))
}

func TestDispatch_NeverFails(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&config.Config{LogLevel: "debug", LogFormat: "json"}, &buf)
	m := observability.NewMetrics("test")
	n := NewSNSNotifier(&fakeSNS{err: errors.New("throttled")}, "arn", log)

	Dispatch(context.Background(), n, result(1), m, log)
	assert.Contains(t, buf.String(), "Failed to send notification")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("summary", "failed")))
}

func TestDispatchFailure(t *testing.T) {
	client := &fakeSNS{}
	n := NewSNSNotifier(client, "arn", logger.Nop())

	DispatchFailure(context.Background(), n, false, "20250314", "08:50", errors.New("x"), nil, logger.Nop())
	assert.Empty(t, client.inputs)

	DispatchFailure(context.Background(), n, true, "20250314", "08:50", errors.New("x"), nil, logger.Nop())
	assert.Len(t, client.inputs, 1)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&config.Config{LogLevel: "info", LogFormat: "json"}, &buf)
	n := NewLogNotifier(log)

	require.NoError(t, n.Notify(context.Background(), result(2)))
	require.NoError(t, n.NotifyFailure(context.Background(), "20250314", "08:50", errors.New("boom")))

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "\n"))
	assert.Contains(t, out, "Qualified: 2 stocks at 08:50")
	assert.Contains(t, out, "Checkpoint 08:50 failed")
}
