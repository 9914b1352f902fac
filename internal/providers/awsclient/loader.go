package awsclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// fallbackRegion is used when neither the profile nor the caller sets one.
const fallbackRegion = "us-east-1"

// ErrNoAccount is returned when STS answers without an account ID.
var ErrNoAccount = errors.New("STS GetCallerIdentity returned nil account")

// ProfileConfig is a resolved AWS profile with its SDK configuration and
// initialised service clients.
type ProfileConfig struct {
	// ProfileName is the name from ~/.aws/credentials or "default".
	ProfileName string

	// AccountID is the resolved AWS account ID for this profile (via STS).
	AccountID string

	// CallerARN is the identity the credentials resolve to.
	CallerARN string

	Region  string
	Config  aws.Config
	Clients *ClientSet
}

// Loader loads AWS profiles from the shared config and credentials files.
// Inject a custom ClientFactory via NewLoaderWithFactory in tests.
type Loader struct {
	factory ClientFactory
	load    func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error)
}

// NewLoader returns a Loader backed by the real AWS SDK.
func NewLoader() *Loader {
	return NewLoaderWithFactory(NewClientSet)
}

// NewLoaderWithFactory returns a Loader that uses f to create its ClientSet.
func NewLoaderWithFactory(f ClientFactory) *Loader {
	return &Loader{factory: f, load: awsconfig.LoadDefaultConfig}
}

// LoadProfile loads the SDK config for profile and resolves the caller via
// STS. An empty profile means the default chain; an empty region means the
// profile's region, else us-east-1.
func (l *Loader) LoadProfile(ctx context.Context, profile, region string) (*ProfileConfig, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := l.load(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS profile %q: %w", profileDisplayName(profile), err)
	}
	if cfg.Region == "" {
		cfg.Region = fallbackRegion
	}

	clients := l.factory(cfg)

	accountID, arn, err := resolveCaller(ctx, clients.STS)
	if err != nil {
		return nil, fmt.Errorf("resolve caller for profile %q: %w", profileDisplayName(profile), err)
	}

	return &ProfileConfig{
		ProfileName: profileDisplayName(profile),
		AccountID:   accountID,
		CallerARN:   arn,
		Region:      cfg.Region,
		Config:      cfg,
		Clients:     clients,
	}, nil
}

// profileDisplayName shows the default profile as "default".
func profileDisplayName(profile string) string {
	if profile == "" {
		return "default"
	}
	return profile
}

func resolveCaller(ctx context.Context, client STSClient) (account, arn string, err error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", "", fmt.Errorf("STS GetCallerIdentity: %w", err)
	}
	if out.Account == nil {
		return "", "", ErrNoAccount
	}
	return aws.ToString(out.Account), aws.ToString(out.Arn), nil
}
