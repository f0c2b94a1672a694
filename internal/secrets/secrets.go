// Package secrets resolves wallet keys and credentials referenced from
// configuration. A reference is "env:NAME", "file:/path", "ssm:/param/name"
// or a literal value.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the minimal AWS SSM interface used by the resolver.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver turns secret references into values.
type Resolver struct {
	once   sync.Once
	ssm    ssmAPI
	ssmErr error
	dial   func(ctx context.Context) (ssmAPI, error)
}

// NewResolver returns a resolver that loads the AWS SSM client lazily, only
// when an ssm: reference is encountered.
func NewResolver() *Resolver {
	return &Resolver{dial: dialSSM}
}

// NewResolverWithSSM uses the supplied SSM API.
func NewResolverWithSSM(api ssmAPI) (*Resolver, error) {
	if api == nil {
		return nil, errors.New("secrets: ssm api must not be nil")
	}
	return &Resolver{ssm: api}, nil
}

func dialSSM(ctx context.Context) (ssmAPI, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("secrets: load aws config: %w", err)
	}
	return ssm.NewFromConfig(cfg), nil
}

// Resolve returns the value behind ref. Empty references resolve to "".
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	scheme, rest, ok := strings.Cut(ref, ":")
	if !ok {
		return ref, nil
	}
	switch strings.ToLower(scheme) {
	case "env":
		value, found := os.LookupEnv(rest)
		if !found {
			return "", fmt.Errorf("secrets: environment variable %s is not set", rest)
		}
		return strings.TrimSpace(value), nil
	case "file":
		content, err := os.ReadFile(rest)
		if err != nil {
			return "", fmt.Errorf("secrets: read %s: %w", rest, err)
		}
		return strings.TrimSpace(string(content)), nil
	case "ssm":
		return r.parameter(ctx, rest)
	default:
		return ref, nil
	}
}

func (r *Resolver) parameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("secrets: ssm parameter name is required")
	}
	api, err := r.client(ctx)
	if err != nil {
		return "", err
	}
	withDecryption := true
	out, err := api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("secrets: parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}

func (r *Resolver) client(ctx context.Context) (ssmAPI, error) {
	if r.dial == nil {
		if r.ssm == nil {
			return nil, errors.New("secrets: ssm is not configured")
		}
		return r.ssm, nil
	}
	r.once.Do(func() {
		r.ssm, r.ssmErr = r.dial(ctx)
	})
	return r.ssm, r.ssmErr
}
