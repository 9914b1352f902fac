// Package awsclient loads AWS SDK v2 configuration for the snapshot sinks
// that live in AWS. It owns credential and region resolution; callers only
// see the narrow client interfaces declared here.
package awsclient

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// ---------------------------------------------------------------------------
// Per-service client interfaces
//
// Each interface covers only the operations this tool calls, so tests can
// satisfy them with a small struct returning canned data.
// ---------------------------------------------------------------------------

// STSClient is the subset of STS operations used to resolve the caller.
type STSClient interface {
	GetCallerIdentity(
		ctx context.Context,
		params *sts.GetCallerIdentityInput,
		optFns ...func(*sts.Options),
	) (*sts.GetCallerIdentityOutput, error)
}

// S3Client is the subset of S3 operations used by the snapshot uploader.
type S3Client interface {
	PutObject(
		ctx context.Context,
		params *s3.PutObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.PutObjectOutput, error)
}

// ClientSet holds initialised AWS service clients for one profile and region.
type ClientSet struct {
	STS STSClient
	S3  S3Client
}

// ClientFactory creates a ClientSet from an aws.Config.
// Swap this in tests to inject mock clients.
type ClientFactory func(cfg aws.Config) *ClientSet

// NewClientSet is the production ClientFactory.
func NewClientSet(cfg aws.Config) *ClientSet {
	return &ClientSet{
		STS: sts.NewFromConfig(cfg),
		S3:  s3.NewFromConfig(cfg),
	}
}
