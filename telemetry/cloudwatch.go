// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchevents"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchevents/types"
	"github.com/hashicorp/go-argrep"
)

// DetailType is the detail type of submitted events.
const DetailType = "argrep archive extraction"

// EventPutter is the subset of the CloudWatch Events client used by [CloudWatchHook].
type EventPutter interface {
	PutEvents(ctx context.Context, params *cloudwatchevents.PutEventsInput, optFns ...func(*cloudwatchevents.Options)) (*cloudwatchevents.PutEventsOutput, error)
}

// NewCloudWatchClient creates a CloudWatch Events client from the default credential
// chain. An empty region keeps the region of the environment.
func NewCloudWatchClient(ctx context.Context, region string) (*cloudwatchevents.Client, error) {
	var opts []func(*config.LoadOptions) error
	if len(region) > 0 {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot load aws configuration: %w", err)
	}
	return cloudwatchevents.NewFromConfig(cfg), nil
}

// CloudWatchHook returns a hook that submits the telemetry data of every archive as
// event with the given source. Submission failures are logged, they never affect
// the extraction.
func CloudWatchHook(client EventPutter, source string, logger Logger) argrep.TelemetryHook {
	return func(ctx context.Context, td *argrep.TelemetryData) {
		detail, err := td.MarshalJSON()
		if err != nil {
			logger.Warn("cannot encode telemetry data", "error", err)
			return
		}

		// the extraction context may already be canceled
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		out, err := client.PutEvents(ctx, &cloudwatchevents.PutEventsInput{
			Entries: []types.PutEventsRequestEntry{
				{
					Source:     aws.String(source),
					DetailType: aws.String(DetailType),
					Detail:     aws.String(string(detail)),
					Resources:  []string{},
					Time:       aws.Time(time.Now()),
				},
			},
		})
		if err != nil {
			logger.Warn("cannot submit telemetry event", "archive", td.ArchivePath, "error", err)
			return
		}
		if out.FailedEntryCount > 0 {
			var code string
			if len(out.Entries) > 0 {
				code = aws.ToString(out.Entries[0].ErrorCode)
			}
			logger.Warn("telemetry event rejected", "archive", td.ArchivePath, "code", code)
		}
	}
}
